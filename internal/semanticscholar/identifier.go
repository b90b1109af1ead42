package semanticscholar

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/kevinmichaelchen/papers-without-code/internal/models"
)

var (
	doiPattern = regexp.MustCompile(`^10\.\d{4,9}/\S+$`)
	shaPattern = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)
)

// identifierTypes maps lower-cased prefixes to the spelling the API expects.
var identifierTypes = map[string]string{
	"doi":      "DOI",
	"corpusid": "CorpusId",
	"arxiv":    "ARXIV",
	"acl":      "ACL",
	"mag":      "MAG",
	"pmid":     "PMID",
	"pmcid":    "PMCID",
	"url":      "URL",
}

var urlHosts = []string{
	"semanticscholar.org",
	"arxiv.org",
	"aclweb.org",
	"aclanthology.org",
	"acm.org",
	"biorxiv.org",
}

// Identifier normalizes a paper query into the form used in the lookup
// path. Accepted forms are a bare DOI, a bare 40-character Semantic Scholar
// ID, or "type:value" where type is one of DOI, CorpusId, ARXIV, ACL, MAG,
// PMID, PMCID or URL (any case). URL values must point at a known host.
func Identifier(query string) (string, error) {
	const op = "semanticscholar.Identifier"
	q := strings.TrimSpace(query)
	if q == "" {
		return "", models.Errorf(models.KindInvalidInput, op, "empty paper identifier")
	}
	if doiPattern.MatchString(q) || shaPattern.MatchString(q) {
		return q, nil
	}

	prefix, value, ok := strings.Cut(q, ":")
	if !ok {
		return "", models.Errorf(models.KindInvalidInput, op, "unrecognized paper identifier %q", q)
	}
	kind, known := identifierTypes[strings.ToLower(strings.TrimSpace(prefix))]
	value = strings.TrimSpace(value)
	if !known || value == "" {
		return "", models.Errorf(models.KindInvalidInput, op, "unrecognized paper identifier %q", q)
	}
	if kind == "URL" && !knownURL(value) {
		return "", models.Errorf(models.KindInvalidInput, op, "unsupported paper URL %q", value)
	}
	return kind + ":" + value, nil
}

func knownURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range urlHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}
