package models

// SearchQuery is one repository search derived from a paper keyword.
// ExactPhrase queries are quoted before they are sent.
type SearchQuery struct {
	Text        string `json:"query"`
	ExactPhrase bool   `json:"exact_phrase"`
}

// SearchHit is a non-fork repository returned by the code search API.
type SearchHit struct {
	FullName         string  `json:"full_name"`
	Stars            int     `json:"stars"`
	Forks            int     `json:"forks"`
	Watchers         int     `json:"watchers"`
	Description      *string `json:"description"`
	OriginatingQuery string  `json:"search_query"`
}

// RepoReadme is a SearchHit whose rendered README was found.
type RepoReadme struct {
	SearchHit
	ReadmeText string `json:"readme_text"`
}

// RankedRepo is the final output entity.
type RankedRepo struct {
	Name        string  `json:"name" yaml:"name"`
	Link        string  `json:"link" yaml:"link"`
	SearchQuery string  `json:"search_query" yaml:"search_query"`
	Similarity  float64 `json:"similarity" yaml:"similarity"`
	Stars       int     `json:"stars" yaml:"stars"`
	Forks       int     `json:"forks" yaml:"forks"`
	Watchers    int     `json:"watchers" yaml:"watchers"`
	Description *string `json:"description" yaml:"description"`
}

// RepoLink returns the public page of a repository on github.com.
func RepoLink(fullName string) string {
	return "https://github.com/" + fullName
}

// NewRankedRepo attaches a similarity score to a README-backed hit.
func NewRankedRepo(r RepoReadme, score float64) RankedRepo {
	return RankedRepo{
		Name:        r.FullName,
		Link:        RepoLink(r.FullName),
		SearchQuery: r.OriginatingQuery,
		Similarity:  score,
		Stars:       r.Stars,
		Forks:       r.Forks,
		Watchers:    r.Watchers,
		Description: r.Description,
	}
}
