// Package engine wires the calculators and the materializer on top of the
// configured terminology repository. The server and the worker share it.
package engine

import (
	"fmt"

	"github.com/OFFIS-RIT/amtcalc/internal/util"
	"github.com/OFFIS-RIT/amtcalc/pkg/common"
	"github.com/OFFIS-RIT/amtcalc/pkg/materialize"
	"github.com/OFFIS-RIT/amtcalc/pkg/owl"
	"github.com/OFFIS-RIT/amtcalc/pkg/product"
	"github.com/OFFIS-RIT/amtcalc/pkg/resolver"
	"github.com/OFFIS-RIT/amtcalc/pkg/store"
	"github.com/OFFIS-RIT/amtcalc/pkg/terminology"
	"github.com/OFFIS-RIT/amtcalc/pkg/terminology/namegen"
	"github.com/OFFIS-RIT/amtcalc/pkg/terminology/snowstorm"
)

// Engine holds one calculator per product family and the materializer.
type Engine struct {
	Medications    *product.Assembler[common.MedicationProductDetails]
	Devices        *product.Assembler[common.DeviceProductDetails]
	BrandPackSizes *product.BrandPackSizeCalculator
	Materializer   *materialize.Materializer
}

// NewEngineParams are the collaborators of an Engine. Tickets and Locker
// may be nil.
type NewEngineParams struct {
	Repository  terminology.Repository
	Names       terminology.NameGenerator
	Identifiers terminology.IdentifierRegistry
	Tickets     store.TicketStore
	Locker      materialize.Locker

	ModuleID        string
	MaxMatches      int
	ParallelLookups int
	ParallelNodes   int
}

func NewEngine(params NewEngineParams) (*Engine, error) {
	nodeResolver, err := resolver.NewNodeResolver(resolver.NewNodeResolverParams{
		Repository:      params.Repository,
		Axioms:          owl.Translator{},
		Names:           params.Names,
		MaxMatches:      params.MaxMatches,
		ParallelLookups: params.ParallelLookups,
	})
	if err != nil {
		return nil, err
	}

	calc, err := product.NewCalculator(product.NewCalculatorParams{
		Resolver:      nodeResolver,
		ParallelNodes: params.ParallelNodes,
	})
	if err != nil {
		return nil, err
	}

	materializer, err := materialize.NewMaterializer(materialize.NewMaterializerParams{
		Repository:  params.Repository,
		Identifiers: params.Identifiers,
		Tickets:     params.Tickets,
		Locker:      params.Locker,
		ModuleID:    params.ModuleID,
	})
	if err != nil {
		return nil, err
	}

	return &Engine{
		Medications:    product.NewAssembler(calc, product.MedicationStrategy{}),
		Devices:        product.NewAssembler(calc, product.DeviceStrategy{}),
		BrandPackSizes: product.NewBrandPackSizeCalculator(calc),
		Materializer:   materializer,
	}, nil
}

// FromConfig builds an Engine on the Snowstorm repository and name
// generator named in cfg.
func FromConfig(cfg util.Config, tickets store.TicketStore, locker materialize.Locker) (*Engine, error) {
	schemes, err := terminology.ParseSchemes(cfg.IdentifierSchemes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse identifier schemes: %w", err)
	}
	if cfg.NameGeneratorURL == "" {
		return nil, fmt.Errorf("NAME_GENERATOR_URL is not set")
	}

	repo := snowstorm.NewClient(
		cfg.SnowstormURL,
		snowstorm.WithMaxRetries(cfg.RepositoryRetries),
		snowstorm.WithLanguageRefset(cfg.LanguageRefset),
	)

	return NewEngine(NewEngineParams{
		Repository:      repo,
		Names:           namegen.NewClient(cfg.NameGeneratorURL, nil, namegen.WithMaxRetries(cfg.RepositoryRetries)),
		Identifiers:     schemes,
		Tickets:         tickets,
		Locker:          locker,
		ModuleID:        cfg.DefaultModuleID,
		MaxMatches:      cfg.CalcMaxMatches,
		ParallelLookups: cfg.CalcParallelLookups,
		ParallelNodes:   cfg.CalcParallelNodes,
	})
}
