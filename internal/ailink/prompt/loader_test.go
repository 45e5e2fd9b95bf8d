package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	prompts, err := LoadDefaults()
	require.NoError(t, err)
	require.Len(t, prompts, 4)

	reg, err := NewRegistry(prompts)
	require.NoError(t, err)

	for _, slug := range []string{SlugQuickRelevance, SlugDetailedRelevance, SlugPaperQuality, SlugSearchKeywords} {
		p, err := reg.Get(slug)
		require.NoError(t, err, slug)
		require.NotEmpty(t, p.Config.SystemTemplate, slug)
		require.NotEmpty(t, p.Config.Role, slug)
	}
}

func TestDefaultPromptFormats(t *testing.T) {
	reg, err := DefaultRegistry()
	require.NoError(t, err)

	quick, err := reg.Get(SlugQuickRelevance)
	require.NoError(t, err)
	require.False(t, quick.ExpectsJSON())
	require.Contains(t, quick.Config.UserTemplate, "{{text}}")

	detailed, err := reg.Get(SlugDetailedRelevance)
	require.NoError(t, err)
	require.True(t, detailed.ExpectsJSON())
	require.Equal(t, "detailed", detailed.Config.Role)
	require.NotEmpty(t, detailed.Config.ResponseSchema)
	require.Contains(t, detailed.Config.SystemTemplate, `{"relevant": false}`)
	require.Contains(t, detailed.Config.SystemTemplate, "{{#if web3}}")
}

func TestLoadBodyBecomesSystemTemplate(t *testing.T) {
	data := []byte("---\nslug: demo\nrole: quick\n---\nYou are helpful.\n")
	p, err := Load("demo.md", data)
	require.NoError(t, err)
	require.Equal(t, "You are helpful.", p.Config.SystemTemplate)
	require.Equal(t, "text", p.Config.Format)
}

func TestLoadRejectsInvalidPrompts(t *testing.T) {
	_, err := Load("empty.md", []byte("  "))
	require.Error(t, err)

	_, err = Load("nosystem.md", []byte("---\nslug: demo\nrole: quick\n---\n"))
	require.ErrorContains(t, err, "missing system_template")

	_, err = Load("badrole.md", []byte("---\nslug: demo\nrole: poet\n---\nbody\n"))
	require.ErrorContains(t, err, "schema validation failed")
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	p := &Prompt{Config: Config{Slug: "a", Role: "quick", SystemTemplate: "x"}}
	_, err := NewRegistry([]*Prompt{p, p})
	require.ErrorContains(t, err, "duplicate")

	reg, err := NewRegistry([]*Prompt{p})
	require.NoError(t, err)
	_, err = reg.Get("missing")
	require.ErrorContains(t, err, "not found")
}

func TestLoadRegistryOverridesFromDir(t *testing.T) {
	dir := t.TempDir()
	override := "---\nslug: quick-relevance\nrole: quick\nuser_template: \"{{text}}\"\n---\nCustom screen for {{subject}}.\n"
	extra := "---\nslug: extra\nrole: keywords\n---\nExtra prompt.\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quick.md"), []byte(override), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.md"), []byte(extra), 0o600))

	reg, err := LoadRegistry(dir)
	require.NoError(t, err)

	quick, err := reg.Get(SlugQuickRelevance)
	require.NoError(t, err)
	require.Equal(t, "Custom screen for {{subject}}.", quick.Config.SystemTemplate)

	_, err = reg.Get("extra")
	require.NoError(t, err)
	require.Len(t, reg.List(), 5)
}
