package action

import (
	"context"
	"fmt"

	"github.com/stewardhq/steward/internal/mcp"
)

// RegisterMCP discovers the tools of an MCP server and registers each as
// an action. MCP actions go through the same permission gate as built-ins.
func RegisterMCP(r *Registry, client *mcp.Client) error {
	tools, err := client.ListTools()
	if err != nil {
		return fmt.Errorf("listing MCP tools: %w", err)
	}

	for _, tool := range tools {
		params := make(map[string]string, len(tool.InputSchema.Properties))
		for name, prop := range tool.InputSchema.Properties {
			params[name] = prop.Description
		}

		name := tool.Name
		r.Register(&Func{
			ActionName: name,
			Desc:       tool.Description,
			ParamDocs:  params,
			Run: func(ctx context.Context, args map[string]string) (string, error) {
				arguments := make(map[string]interface{}, len(args))
				for k, v := range args {
					arguments[k] = v
				}
				result, err := client.CallTool(name, arguments)
				if err != nil {
					return "", err
				}
				if result.IsError {
					return "", fmt.Errorf("tool %s failed: %s", name, result.Text())
				}
				return result.Text(), nil
			},
		})
	}
	return nil
}
