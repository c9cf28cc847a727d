package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaper_Key(t *testing.T) {
	tests := []struct {
		name  string
		paper Paper
		want  string
	}{
		{name: "external id wins", paper: Paper{ExternalID: " 123 ", DOI: "10.1/x"}, want: "id:123"},
		{name: "doi", paper: Paper{DOI: "https://doi.org/10.1/X", Title: "T"}, want: "doi:10.1/x"},
		{name: "title and author", paper: Paper{DOI: NoDOI, Title: "Statins: A Review", FirstAuthor: "Smith J"}, want: "title:statins a review|smith j"},
		{name: "author placeholder dropped", paper: Paper{Title: "Statins", FirstAuthor: NoAuthor}, want: "title:statins|"},
		{name: "title placeholder dropped", paper: Paper{Title: NoTitle, FirstAuthor: "Smith J"}, want: "title:|smith j"},
		{name: "no identity", paper: Paper{Title: NoTitle, FirstAuthor: NoAuthor, DOI: NoDOI}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.paper.Key())
		})
	}
}

func TestDedupe_KeepsRecordsWithoutIdentity(t *testing.T) {
	blank := Paper{Title: NoTitle, FirstAuthor: NoAuthor, DOI: NoDOI, Abstract: NoAbstract}
	papers := []Paper{
		{ExternalID: "1", Title: "One"},
		blank,
		{ExternalID: "1", Title: "One again"},
		blank,
		{Title: NoTitle, FirstAuthor: NoAuthor, Journal: "Lancet"},
	}

	got := Dedupe(papers)

	assert.Len(t, got, 4)
	assert.Equal(t, "One", got[0].Title)
	assert.Equal(t, "Lancet", got[3].Journal)
}
