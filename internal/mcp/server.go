package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dirconsole/internal/core"
	"dirconsole/internal/directory"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// auditActor recorded for tool-initiated mutations.
const auditActor = "mcp"

// MCPServer exposes the console's operations as MCP tools over stdio.
type MCPServer struct {
	store     core.Store
	vacations *core.VacationService
	tasks     *core.TaskService
	dir       directory.Client
	logger    *slog.Logger
}

// NewMCPServer creates a new MCP server instance.
func NewMCPServer(st core.Store, vacations *core.VacationService, tasks *core.TaskService, dir directory.Client, logger *slog.Logger) *MCPServer {
	return &MCPServer{
		store:     st,
		vacations: vacations,
		tasks:     tasks,
		dir:       dir,
		logger:    logger,
	}
}

// Run starts the MCP server using stdio transport.
func (s *MCPServer) Run() error {
	mcpServer := server.NewMCPServer(
		"dirconsole",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)

	s.logger.Info("MCP server starting on stdio")
	return server.ServeStdio(mcpServer)
}

func (s *MCPServer) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("vacation_schedule",
		mcp.WithDescription("Book a vacation for a directory account. The account is disabled at the start date and re-enabled at the end date."),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("Directory account name"),
		),
		mcp.WithString("start_date",
			mcp.Required(),
			mcp.Description("Start of the vacation, RFC3339 (e.g. 2025-06-01T00:00:00Z)"),
		),
		mcp.WithString("end_date",
			mcp.Required(),
			mcp.Description("End of the vacation, RFC3339; must be after start_date"),
		),
		mcp.WithString("description",
			mcp.Description("Optional free-text note"),
		),
	), s.handleScheduleVacation)

	mcpServer.AddTool(mcp.NewTool("vacation_cancel",
		mcp.WithDescription("Cancel a vacation and remove its scheduled tasks. Does not undo an already-applied disable or enable."),
		mcp.WithString("vacation_id",
			mcp.Required(),
			mcp.Description("Vacation ID"),
		),
	), s.handleCancelVacation)

	mcpServer.AddTool(mcp.NewTool("schedule_list",
		mcp.WithDescription("List all scheduled tasks ordered by run time"),
	), s.handleListSchedule)

	mcpServer.AddTool(mcp.NewTool("schedule_remove",
		mcp.WithDescription("Remove a single scheduled task by id"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleRemoveTask)

	mcpServer.AddTool(mcp.NewTool("user_search",
		mcp.WithDescription("Search directory users by account name, display name or mail"),
		mcp.WithString("query",
			mcp.Description("Substring to search for; empty lists all users"),
		),
	), s.handleSearchUsers)

	mcpServer.AddTool(mcp.NewTool("user_disable",
		mcp.WithDescription("Disable a directory account immediately"),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("Directory account name"),
		),
	), s.handleDisableUser)

	mcpServer.AddTool(mcp.NewTool("user_enable",
		mcp.WithDescription("Enable a directory account immediately"),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("Directory account name"),
		),
	), s.handleEnableUser)

	mcpServer.AddTool(mcp.NewTool("audit_recent",
		mcp.WithDescription("Show the most recent audit log entries"),
		mcp.WithNumber("limit",
			mcp.Description("Number of entries to return, default 20"),
			mcp.Min(1),
			mcp.Max(100),
		),
	), s.handleRecentAudit)

	s.logger.Info("MCP tools registered", "count", 8)
}

func (s *MCPServer) handleScheduleVacation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := mcp.ParseString(request, "user_id", "")
	startStr := mcp.ParseString(request, "start_date", "")
	endStr := mcp.ParseString(request, "end_date", "")

	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid start_date: %v", err)), nil
	}
	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid end_date: %v", err)), nil
	}
	if !end.After(start) {
		return mcp.NewToolResultError("end_date must be after start_date"), nil
	}

	var descPtr *string
	if desc := mcp.ParseString(request, "description", ""); desc != "" {
		descPtr = &desc
	}

	vacationID, err := s.vacations.Schedule(ctx, auditActor, userID, start, end, descPtr)
	if err != nil {
		s.logger.Error("schedule vacation", "user_id", userID, "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to schedule vacation: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("vacation scheduled\nID: %s\ndisable at: %s\nenable at: %s",
		vacationID, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))), nil
}

func (s *MCPServer) handleCancelVacation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	vacationID := mcp.ParseString(request, "vacation_id", "")
	removed, err := s.vacations.Cancel(ctx, auditActor, vacationID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to cancel vacation: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("vacation %s canceled, %d task(s) removed", vacationID, removed)), nil
}

func (s *MCPServer) handleListSchedule(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tasks, err := s.tasks.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list schedule: %v", err)), nil
	}
	if len(tasks) == 0 {
		return mcp.NewToolResultText("no scheduled tasks"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d scheduled task(s):\n\n", len(tasks))
	for _, t := range tasks {
		fmt.Fprintf(&b, "%s  %s  %s\n", t.ID, t.Type, t.Status)
		fmt.Fprintf(&b, "  run at: %s\n", t.RunAt.UTC().Format(time.RFC3339))
		fmt.Fprintf(&b, "  related: %s/%s\n", t.Related.Table, t.Related.ID)
		if t.ExecutedAt != nil {
			fmt.Fprintf(&b, "  executed at: %s\n", t.ExecutedAt.UTC().Format(time.RFC3339))
		}
		if t.Error != nil {
			fmt.Fprintf(&b, "  error: %s\n", *t.Error)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleRemoveTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	removed, err := s.tasks.Remove(ctx, taskID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to remove task: %v", err)), nil
	}
	if !removed {
		return mcp.NewToolResultText(fmt.Sprintf("task %s not found", taskID)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("task %s removed", taskID)), nil
}

func (s *MCPServer) handleSearchUsers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := mcp.ParseString(request, "query", "")
	users, err := s.dir.SearchUsers(ctx, query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("directory search failed: %v", err)), nil
	}
	if len(users) == 0 {
		return mcp.NewToolResultText("no users found"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d user(s):\n\n", len(users))
	for _, u := range users {
		state := "enabled"
		if !u.Enabled {
			state = "disabled"
		}
		if u.Locked {
			state += ", locked"
		}
		fmt.Fprintf(&b, "%s  (%s)\n", u.ID, state)
		if u.DisplayName != "" {
			fmt.Fprintf(&b, "  name: %s\n", u.DisplayName)
		}
		if u.Email != "" {
			fmt.Fprintf(&b, "  mail: %s\n", u.Email)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleDisableUser(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.setAccountState(ctx, request, true)
}

func (s *MCPServer) handleEnableUser(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.setAccountState(ctx, request, false)
}

func (s *MCPServer) setAccountState(ctx context.Context, request mcp.CallToolRequest, disable bool) (*mcp.CallToolResult, error) {
	userID := mcp.ParseString(request, "user_id", "")

	var err error
	action := core.AuditUserEnable
	verb := "enabled"
	if disable {
		action = core.AuditUserDisable
		verb = "disabled"
		err = s.dir.DisableAccount(ctx, userID)
	} else {
		err = s.dir.EnableAccount(ctx, userID)
	}

	entry := &core.AuditEntry{
		Action:  action,
		Actor:   auditActor,
		Target:  &userID,
		Success: err == nil,
	}
	if err != nil {
		msg := err.Error()
		entry.Error = &msg
	}
	if auditErr := s.store.InsertAuditEntry(ctx, entry); auditErr != nil {
		s.logger.Error("write audit entry", "action", string(action), "err", auditErr)
	}

	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("user not found: %s", userID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("directory update failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("account %s %s", userID, verb)), nil
}

func (s *MCPServer) handleRecentAudit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := int(mcp.ParseFloat64(request, "limit", 20))
	entries, err := s.store.ListAuditEntries(ctx, limit, 0)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list audit entries: %v", err)), nil
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("audit log is empty"), nil
	}

	var b strings.Builder
	for _, e := range entries {
		outcome := "ok"
		if !e.Success {
			outcome = "failed"
		}
		target := ""
		if e.Target != nil {
			target = " " + *e.Target
		}
		fmt.Fprintf(&b, "%s  %s%s  by %s  [%s]\n",
			e.At.UTC().Format(time.RFC3339), e.Action, target, e.Actor, outcome)
		if e.Error != nil {
			fmt.Fprintf(&b, "  error: %s\n", *e.Error)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}
