package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/codexlms/codex/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads the comma-separated `ordering` query param; a leading "-" sorts descending.
func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bind binds the request into v, turning binding failures into 400s.
func bind(ctx echo.Context, v interface{}, what string) error {
	if err := ctx.Bind(v); err != nil {
		if herr, ok := err.(*echo.HTTPError); ok {
			return herr
		}
		return errors.Wrap(err, "binding to "+what)
	}
	return nil
}
