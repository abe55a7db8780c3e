package engine

import (
	"testing"

	"github.com/OFFIS-RIT/amtcalc/internal/util"
	"github.com/OFFIS-RIT/amtcalc/pkg/terminology"
	"github.com/OFFIS-RIT/amtcalc/pkg/terminology/terminologytest"
)

func TestNewEngine(t *testing.T) {
	e, err := NewEngine(NewEngineParams{
		Repository:  terminologytest.NewRepository(),
		Names:       &terminologytest.Names{},
		Identifiers: terminology.SchemeRegistry{"ARTGID": "11000168105"},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if e.Medications == nil || e.Devices == nil || e.BrandPackSizes == nil || e.Materializer == nil {
		t.Fatalf("expected every component to be built, got %+v", e)
	}
}

func TestNewEngine_MissingCollaborators(t *testing.T) {
	tests := []struct {
		name   string
		params NewEngineParams
	}{
		{"no repository", NewEngineParams{Names: &terminologytest.Names{}, Identifiers: terminology.SchemeRegistry{}}},
		{"no names", NewEngineParams{Repository: terminologytest.NewRepository(), Identifiers: terminology.SchemeRegistry{}}},
		{"no identifiers", NewEngineParams{Repository: terminologytest.NewRepository(), Names: &terminologytest.Names{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewEngine(tt.params); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}

func TestFromConfig(t *testing.T) {
	base := util.Config{
		SnowstormURL:      "http://snowstorm",
		NameGeneratorURL:  "http://names",
		IdentifierSchemes: "ARTGID=11000168105",
	}

	if _, err := FromConfig(base, nil, nil); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	badSchemes := base
	badSchemes.IdentifierSchemes = "ARTGID"
	if _, err := FromConfig(badSchemes, nil, nil); err == nil {
		t.Fatalf("expected malformed schemes to fail")
	}

	noNames := base
	noNames.NameGeneratorURL = ""
	if _, err := FromConfig(noNames, nil, nil); err == nil {
		t.Fatalf("expected missing name generator to fail")
	}
}
