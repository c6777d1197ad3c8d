package nodehandler

import (
	"context"
	"fmt"
)

func handleActSlack(ctx context.Context, deps *Dependencies, task Task) (Result, error) {
	channel, ok := configString(task.Config, "channel")
	if !ok {
		return Result{}, fmt.Errorf("act.slack: missing channel")
	}
	message, ok := configString(task.Config, "message")
	if !ok {
		message, ok = firstNonEmpty(task.Inputs, "content", "text", "summary")
	}
	if !ok {
		message = ""
	}

	timestamp, err := deps.Slack.PostMessage(ctx, channel, message)
	if err != nil {
		return Result{}, fmt.Errorf("act.slack: %w", err)
	}

	return Result{Outputs: map[string]interface{}{
		"timestamp": timestamp,
		"channel":   channel,
		"message":   message,
	}}, nil
}

func handleActSheets(ctx context.Context, deps *Dependencies, task Task) (Result, error) {
	spreadsheetID, ok := configString(task.Config, "spreadsheet_id")
	if !ok {
		return Result{}, fmt.Errorf("act.sheets: missing spreadsheet_id")
	}
	sheetName, _ := configString(task.Config, "sheet_name")
	if sheetName == "" {
		sheetName = "Sheet1"
	}

	values := rowValues(task.Inputs)
	updatedRange, rowsAdded, err := deps.Sheets.AppendRow(ctx, spreadsheetID, sheetName, values)
	if err != nil {
		return Result{}, fmt.Errorf("act.sheets: %w", err)
	}

	return Result{Outputs: map[string]interface{}{
		"updated_range": updatedRange,
		"rows_added":    rowsAdded,
	}}, nil
}

// rowValues turns the node's data/content input into a single spreadsheet
// row: the raw value for data, or a one-cell row for content.
func rowValues(inputs map[string]interface{}) []interface{} {
	if data, ok := inputs["data"]; ok {
		if row, ok := data.([]interface{}); ok {
			return row
		}
		return []interface{}{data}
	}
	if content, ok := firstNonEmpty(inputs, "content"); ok {
		return []interface{}{content}
	}
	return []interface{}{}
}

func handleActEmail(ctx context.Context, deps *Dependencies, task Task) (Result, error) {
	to, ok := configString(task.Config, "to")
	if !ok {
		return Result{}, fmt.Errorf("act.email: missing to")
	}
	subject, _ := configString(task.Config, "subject")
	body, _ := firstNonEmpty(task.Inputs, "content", "text")

	messageID, err := deps.Email.Send(ctx, to, subject, body)
	if err != nil {
		return Result{}, fmt.Errorf("act.email: %w", err)
	}

	return Result{Outputs: map[string]interface{}{
		"message_id": messageID,
		"to":         to,
		"subject":    subject,
	}}, nil
}

func handleActNotion(ctx context.Context, deps *Dependencies, task Task) (Result, error) {
	databaseID, ok := configString(task.Config, "database_id")
	if !ok {
		return Result{}, fmt.Errorf("act.notion: missing database_id")
	}
	title, _ := configString(task.Config, "title")
	content, _ := firstNonEmpty(task.Inputs, "content", "text")

	pageID, err := deps.Notion.CreatePage(ctx, databaseID, title, content)
	if err != nil {
		return Result{}, fmt.Errorf("act.notion: %w", err)
	}

	return Result{Outputs: map[string]interface{}{
		"page_id":     pageID,
		"database_id": databaseID,
	}}, nil
}

func handleActTwilio(ctx context.Context, deps *Dependencies, task Task) (Result, error) {
	to, ok := configString(task.Config, "to")
	if !ok {
		return Result{}, fmt.Errorf("act.twilio: missing to")
	}
	message, ok := configString(task.Config, "message")
	if !ok {
		message, _ = firstNonEmpty(task.Inputs, "content", "text")
	}

	sid, err := deps.Twilio.SendSMS(ctx, to, message)
	if err != nil {
		return Result{}, fmt.Errorf("act.twilio: %w", err)
	}

	return Result{Outputs: map[string]interface{}{
		"sid":     sid,
		"to":      to,
		"message": message,
	}}, nil
}
