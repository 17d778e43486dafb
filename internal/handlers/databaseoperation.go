package handlers

import (
	"context"

	"github.com/EXG1O/telegram-bots-hub/internal/flow"
	"github.com/EXG1O/telegram-bots-hub/internal/variables"
)

// HandleDatabaseOperation implements §4.4.5: expands the operation's
// payload through the variable resolver and issues exactly one create
// or update call to the Designer Client. A node with neither
// sub-operation set is a no-op.
func HandleDatabaseOperation(ctx context.Context, deps Deps, op flow.DatabaseOperation, v *variables.Variables) ([]flow.Connection, error) {
	switch {
	case op.Create != nil:
		expanded, err := variables.ExpandData(ctx, toAny(op.Create.Data), v, false)
		if err != nil {
			return nil, err
		}
		if err := deps.Designer.CreateDatabaseRecord(ctx, expanded.(map[string]any)); err != nil {
			return nil, err
		}
	case op.Update != nil:
		expandedData, err := variables.ExpandData(ctx, toAny(op.Update.NewData), v, false)
		if err != nil {
			return nil, err
		}
		lookupValue, err := variables.ExpandText(ctx, op.Update.LookupFieldValue, v)
		if err != nil {
			return nil, err
		}
		if err := deps.Designer.UpdateDatabaseRecords(
			ctx,
			op.Update.LookupFieldName, lookupValue,
			expandedData.(map[string]any),
			op.Update.Overwrite, op.Update.CreateIfNotFound,
		); err != nil {
			return nil, err
		}
	default:
		return nil, nil
	}

	return op.SourceConnections, nil
}

func toAny(m map[string]any) any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
