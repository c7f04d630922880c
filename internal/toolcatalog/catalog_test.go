package toolcatalog

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDefault(t *testing.T) *Catalog {
	t.Helper()
	c, err := Default()
	require.NoError(t, err)
	return c
}

func TestDefaultCatalogShape(t *testing.T) {
	c := mustDefault(t)

	assert.Equal(t,
		[]string{"github", "railway", "elevenlabs", "n8n", "notion", "blender", "unreal", "vercel", "system"},
		c.GroupNames())
	assert.Equal(t, 42, c.All().ToolCount())
	require.Len(t, c.Categories(), 6)
	assert.Equal(t, "development", c.Categories()[0].Name)
}

func TestByCategorySkipsUninstalledGroups(t *testing.T) {
	c := mustDefault(t)

	media := c.ByCategory("ai_media")
	require.Len(t, media, 1)
	assert.Equal(t, "elevenlabs", media[0].Name)

	dev := c.ByCategory("development")
	names := make([]string, len(dev))
	for i, g := range dev {
		names[i] = g.Name
	}
	assert.Equal(t, []string{"github", "system", "vercel", "railway"}, names)

	assert.Empty(t, c.ByCategory("nope"))
}

func TestSearchMatchesNameOrDescription(t *testing.T) {
	c := mustDefault(t)

	got := c.Search("DEPLOY")
	names := map[string][]string{}
	for _, g := range got {
		for _, tool := range g.Tools {
			names[g.Name] = append(names[g.Name], tool.Name)
		}
	}
	assert.Equal(t, []string{"service_create_from_repo", "database_deploy"}, names["railway"])
	assert.Equal(t, []string{"deployment_trigger"}, names["vercel"])
	assert.NotContains(t, names, "github")

	assert.Empty(t, c.Search("zzz-no-such-tool"))
}

func TestSearchIsIdempotent(t *testing.T) {
	c := mustDefault(t)
	first, err := json.Marshal(c.Search("create"))
	require.NoError(t, err)
	second, err := json.Marshal(c.Search("create"))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestSuggestKeywordRules(t *testing.T) {
	c := mustDefault(t)

	cases := []struct {
		message string
		want    []string
	}{
		{message: "hello there", want: nil},
		{message: "Open an ISSUE on my repo", want: []string{"github"}},
		{message: "deploy a server with a voice model", want: []string{"railway", "elevenlabs", "blender"}},
		{message: "write a wiki note about my workflow", want: []string{"n8n", "notion"}},
	}
	for _, tc := range cases {
		t.Run(tc.message, func(t *testing.T) {
			var got []string
			for _, s := range c.Suggest(tc.message) {
				got = append(got, s.Group)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestContextWithoutSuggestions(t *testing.T) {
	c := mustDefault(t)

	want := "\n\n=== MCP TOOLS AVAILABLE ===\n" +
		"TOOL CATEGORIES:\n" +
		"development: github, system, vercel, railway\n" +
		"ai_media: elevenlabs, spectre\n" +
		"automation: n8n\n" +
		"documentation: notion\n" +
		"creative: blender, unreal\n" +
		"deployment: railway, vercel\n" +
		"\nI can use these tools to help with your request. Just ask me to use specific MCP tools or I can suggest the best ones for your task."
	assert.Equal(t, want, c.Context("good morning"))
}

func TestContextWithSuggestions(t *testing.T) {
	c := mustDefault(t)

	got := c.Context("create a github repo")
	assert.True(t, strings.HasPrefix(got, "\n\n=== MCP TOOLS AVAILABLE ===\n"+
		"SUGGESTED TOOLS for this request:\n"+
		"github: create_repository, search_repositories, create_issue (GitHub repository management)\n"+
		"\nTOOL CATEGORIES:\n"))
}

func TestListingJSONPreservesOrder(t *testing.T) {
	l := Listing{
		{Name: "zeta", Tools: []Tool{{Name: "b", Description: "second"}, {Name: "a", Description: "first \"quoted\""}}},
		{Name: "alpha", Tools: nil},
	}
	raw, err := json.Marshal(l)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":{"b":"second","a":"first \"quoted\""},"alpha":{}}`, string(raw))

	empty, err := json.Marshal(Listing{})
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(empty))
}

func TestParseRejectsDuplicateGroups(t *testing.T) {
	_, err := Parse([]byte("groups:\n  - name: a\n  - name: a\n"))
	require.Error(t, err)

	_, err = Parse([]byte("groups: ["))
	require.Error(t, err)
}
