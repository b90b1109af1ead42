package grobid

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/kevinmichaelchen/papers-without-code/internal/models"
)

// teiText is an element's attributes and its text with all descendant
// markup dropped and whitespace collapsed.
type teiText struct {
	Attrs []xml.Attr
	Text  string
}

func (t *teiText) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	t.Attrs = start.Attr
	var b strings.Builder
	depth := 0
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch v := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 {
				t.Text = strings.Join(strings.Fields(b.String()), " ")
				return nil
			}
			depth--
		case xml.CharData:
			b.Write(v)
		}
	}
}

func (t teiText) attr(name string) string {
	for _, a := range t.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

type teiAuthor struct {
	Forenames    []teiText `xml:"persName>forename"`
	Surname      teiText   `xml:"persName>surname"`
	Email        string    `xml:"email"`
	Affiliations []struct {
		OrgNames []teiText `xml:"orgName"`
	} `xml:"affiliation"`
}

type teiDiv struct {
	Paragraphs []teiText `xml:"p"`
}

type teiDocument struct {
	XMLName        xml.Name    `xml:"TEI"`
	StmtTitles     []teiText   `xml:"teiHeader>fileDesc>titleStmt>title"`
	AnalyticTitles []teiText   `xml:"teiHeader>fileDesc>sourceDesc>biblStruct>analytic>title"`
	Authors        []teiAuthor `xml:"teiHeader>fileDesc>sourceDesc>biblStruct>analytic>author"`
	AbstractDivs   []teiDiv    `xml:"teiHeader>profileDesc>abstract>div"`
	AbstractParas  []teiText   `xml:"teiHeader>profileDesc>abstract>p"`
	BodyDivs       []teiDiv    `xml:"text>body>div"`
}

// ParseTEI extracts title, authors, abstract and body text from a GROBID
// TEI document.
func ParseTEI(r io.Reader) (models.PaperDetails, error) {
	var doc teiDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return models.PaperDetails{}, fmt.Errorf("parsing TEI: %w", err)
	}

	paper := models.PaperDetails{
		Title:   pickTitle(doc.AnalyticTitles),
		Authors: make([]models.AuthorDetails, 0, len(doc.Authors)),
	}
	if paper.Title == "" {
		paper.Title = pickTitle(doc.StmtTitles)
	}

	for _, a := range doc.Authors {
		if author, ok := toAuthor(a); ok {
			paper.Authors = append(paper.Authors, author)
		}
	}

	var abstract []teiText
	for _, d := range doc.AbstractDivs {
		abstract = append(abstract, d.Paragraphs...)
	}
	abstract = append(abstract, doc.AbstractParas...)
	paper.Abstract = joinText(abstract)

	var body []teiText
	for _, d := range doc.BodyDivs {
		body = append(body, d.Paragraphs...)
	}
	paper.BodyText = joinText(body)

	return paper, nil
}

// pickTitle prefers the main title.
func pickTitle(titles []teiText) string {
	for _, t := range titles {
		if t.attr("type") == "main" && t.Text != "" {
			return t.Text
		}
	}
	for _, t := range titles {
		if t.Text != "" {
			return t.Text
		}
	}
	return ""
}

func toAuthor(a teiAuthor) (models.AuthorDetails, bool) {
	var parts []string
	for _, f := range a.Forenames {
		if f.Text != "" {
			parts = append(parts, f.Text)
		}
	}
	if a.Surname.Text != "" {
		parts = append(parts, a.Surname.Text)
	}
	if len(parts) == 0 {
		return models.AuthorDetails{}, false
	}

	author := models.AuthorDetails{NameParts: parts}
	if email := strings.TrimSpace(a.Email); email != "" {
		author.Email = &email
	}
	if org := affiliation(a); org != "" {
		author.Affiliation = &org
	}
	return author, true
}

// affiliation returns the institution of the first affiliation, or its
// first named organisation.
func affiliation(a teiAuthor) string {
	if len(a.Affiliations) == 0 {
		return ""
	}
	orgs := a.Affiliations[0].OrgNames
	for _, o := range orgs {
		if o.attr("type") == "institution" && o.Text != "" {
			return o.Text
		}
	}
	for _, o := range orgs {
		if o.Text != "" {
			return o.Text
		}
	}
	return ""
}

func joinText(paras []teiText) string {
	parts := make([]string, 0, len(paras))
	for _, p := range paras {
		if p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, " ")
}
