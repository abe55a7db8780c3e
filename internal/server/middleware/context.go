package middleware

import (
	"context"

	"github.com/OFFIS-RIT/amtcalc/internal/engine"
	"github.com/OFFIS-RIT/amtcalc/internal/queue"
	"github.com/OFFIS-RIT/amtcalc/pkg/graph"
	"github.com/OFFIS-RIT/amtcalc/pkg/store"

	"github.com/labstack/echo/v4"
)

// SummaryArchive reads summaries archived by the worker.
type SummaryArchive interface {
	GetSummary(ctx context.Context, key string) (*graph.ProductSummary, error)
	DeleteSummary(ctx context.Context, key string) error
}

type App struct {
	Engine    *engine.Engine
	Tickets   store.TicketStore
	Queue     queue.Publisher
	Summaries SummaryArchive
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app}
			return next(cc)
		}
	}
}
