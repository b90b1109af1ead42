// Package models holds the data types shared by the repository discovery
// pipeline and its collaborators.
package models

import "strings"

// AuthorDetails describes one paper author.
type AuthorDetails struct {
	NameParts   []string `json:"name_parts" yaml:"name_parts"`
	Email       *string  `json:"email,omitempty" yaml:"email,omitempty"`
	Affiliation *string  `json:"affiliation,omitempty" yaml:"affiliation,omitempty"`
}

// Name joins the name parts with single spaces.
func (a AuthorDetails) Name() string {
	return strings.Join(a.NameParts, " ")
}

// Keyword is an extracted phrase and its relevance to the source text.
type Keyword struct {
	Phrase string  `json:"phrase" yaml:"phrase"`
	Score  float64 `json:"score" yaml:"score"`
}

// PaperDetails is built once per request from a lookup or a document parse
// and is treated as read-only afterwards.
type PaperDetails struct {
	Title            string          `json:"title" yaml:"title"`
	Abstract         string          `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	Authors          []AuthorDetails `json:"authors" yaml:"authors"`
	URL              string          `json:"url,omitempty" yaml:"url,omitempty"`
	Keywords         []Keyword       `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	// BodyText is the parsed document body. Keyword extraction and
	// ranking never read it.
	BodyText         string          `json:"-" yaml:"-"`
	ExternalMetadata map[string]any  `json:"-" yaml:"-"`
}

// HasText reports whether the paper has a usable title or abstract.
func (p PaperDetails) HasText() bool {
	return strings.TrimSpace(p.Title) != "" || strings.TrimSpace(p.Abstract) != ""
}

// Content is the text keywords are extracted from: title and abstract
// separated by a blank line, or whichever of the two is present.
func (p PaperDetails) Content() string {
	title := strings.TrimSpace(p.Title)
	abstract := strings.TrimSpace(p.Abstract)
	switch {
	case title != "" && abstract != "":
		return title + "\n\n" + abstract
	case title != "":
		return title
	default:
		return abstract
	}
}

// RankingText is the text READMEs are compared against: the abstract when
// present, otherwise the title.
func (p PaperDetails) RankingText() string {
	if abstract := strings.TrimSpace(p.Abstract); abstract != "" {
		return abstract
	}
	return strings.TrimSpace(p.Title)
}
