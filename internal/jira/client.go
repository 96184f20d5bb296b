// Package jira wraps the tracker's REST API behind a stable local interface.
// It owns authentication, pagination, retry and rate-limit backoff for
// individual calls; callers always see complete logical result sets.
package jira

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	jira "github.com/andygrunwald/go-jira"
	"github.com/trivago/tgo/tcontainer"
	"golang.org/x/oauth2"

	"github.com/danielolaszy/hierview/internal/config"
	"github.com/danielolaszy/hierview/internal/logging"
	"github.com/danielolaszy/hierview/pkg/models"
)

// Custom field IDs on the target JIRA instance.
const (
	// fieldParentLink links an epic to its strategic initiative.
	fieldParentLink = "customfield_12313140"
	// fieldEpicLink links a task to its epic.
	fieldEpicLink = "customfield_12311140"
	// fieldEpicName is the epic's required short name.
	fieldEpicName = "customfield_12311141"
)

const (
	searchPageSize = 100
	maxAttempts    = 3
	backoffBase    = 250 * time.Millisecond
	callTimeout    = 30 * time.Second
)

// searchFields is the field set requested for every hierarchy query.
var searchFields = []string{
	"summary", "status", "priority", "assignee", "reporter", "description",
	"labels", "comment", "created", "updated", "components", "issuetype",
	"issuelinks", fieldParentLink, fieldEpicLink,
}

// Client handles interactions with the JIRA API.
type Client struct {
	client *jira.Client
	cfg    config.JiraConfig
}

// NewClient creates a new JIRA client using the provided configuration.
// A missing credential fails fast before any network call.
func NewClient(cfg *config.Config) (*Client, error) {
	if err := config.ValidateJiraConfig(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	// Bearer PAT authentication via an oauth2 static token source.
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: cfg.Jira.Token},
	)
	tc := oauth2.NewClient(context.Background(), ts)

	client, err := jira.NewClient(tc, cfg.Jira.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to create jira client: %w", err)
	}

	logging.Info("jira configuration",
		"url", cfg.Jira.URL,
		"token", logging.MaskSensitive(cfg.Jira.Token))

	return &Client{
		client: client,
		cfg:    cfg.Jira,
	}, nil
}

// Ready reports whether the client holds a usable credential.
func (c *Client) Ready() bool {
	return c != nil && c.client != nil && c.cfg.Token != ""
}

// TopLevel fetches the issues that form the root level of a hierarchy stream.
func (c *Client) TopLevel(ctx context.Context, filter models.Filter) ([]models.Issue, error) {
	component := filter.Component
	if component == "" {
		component = c.cfg.DefaultComponent
	}

	var jql string
	var typ models.IssueType
	switch filter.TopLevel {
	case models.TypeStrat:
		typ = models.TypeStrat
		jql = fmt.Sprintf(
			`project = %s AND component = "%s" AND status NOT IN (Closed, Resolved) ORDER BY priority DESC, created DESC`,
			c.cfg.StratProject, component)
	default:
		typ = models.TypeRFE
		jql = fmt.Sprintf(
			`project = %s AND issuetype = "Feature Request" AND component = "%s" AND status NOT IN (Closed, Resolved) ORDER BY priority DESC, created DESC`,
			c.cfg.RFEProject, component)
	}

	issues, err := c.search(ctx, jql)
	if err != nil {
		return nil, fmt.Errorf("fetching top level: %w", err)
	}
	return c.convertAll(issues, typ), nil
}

// Children fetches the direct children of one hierarchy node. A result with
// zero children is not an error; a leaf parent returns nil without a query.
func (c *Client) Children(ctx context.Context, parent models.Issue) ([]models.Issue, error) {
	childType := parent.Type.Child()
	if childType == "" {
		return nil, nil
	}

	var jql string
	switch childType {
	case models.TypeStrat:
		jql = fmt.Sprintf(
			`project = %s AND issue in linkedIssues("%s") AND status NOT IN (Closed, Resolved)`,
			c.cfg.StratProject, parent.Key)
	case models.TypeEpic:
		jql = fmt.Sprintf(
			`project = %s AND issuetype = Epic AND "Parent Link" = %s AND status NOT IN (Closed, Resolved)`,
			c.cfg.EngProject, parent.Key)
	case models.TypeTask:
		jql = fmt.Sprintf(
			`"Epic Link" = %s AND issuetype NOT IN (Epic, Feature, "Feature Request") AND status NOT IN (Closed, Resolved)`,
			parent.Key)
	}

	issues, err := c.search(ctx, jql)
	if err != nil {
		return nil, fmt.Errorf("fetching children of %s: %w", parent.Key, err)
	}

	children := c.convertAll(issues, childType)
	for i := range children {
		if children[i].ParentKey == "" {
			children[i].ParentKey = parent.Key
		}
	}
	return children, nil
}

// CreateEpic creates an epic linked to a strategic initiative and returns the
// created issue re-fetched from the tracker.
func (c *Client) CreateEpic(ctx context.Context, req models.CreateEpicRequest) (models.Issue, error) {
	unknowns := tcontainer.NewMarshalMap()
	unknowns[fieldEpicName] = req.Summary
	unknowns[fieldParentLink] = req.StratKey

	fields := &jira.IssueFields{
		Project:     jira.Project{Key: c.cfg.EngProject},
		Summary:     req.Summary,
		Description: req.Description,
		Type:        jira.IssueType{Name: "Epic"},
		Unknowns:    unknowns,
	}
	if req.Component != "" {
		fields.Components = []*jira.Component{{Name: req.Component}}
	}
	if req.Assignee != "" {
		fields.Assignee = &jira.User{Name: req.Assignee}
	}

	issue, err := c.createIssue(ctx, fields, models.TypeEpic)
	if err != nil {
		return models.Issue{}, err
	}
	issue.ParentKey = req.StratKey

	logging.Info("created epic", "key", issue.Key, "strat", req.StratKey)
	return issue, nil
}

// CreateTask creates a task linked to an epic and returns the created issue
// re-fetched from the tracker.
func (c *Client) CreateTask(ctx context.Context, req models.CreateTaskRequest) (models.Issue, error) {
	issueType := req.IssueType
	if issueType == "" {
		issueType = "Story"
	}

	unknowns := tcontainer.NewMarshalMap()
	unknowns[fieldEpicLink] = req.EpicKey

	fields := &jira.IssueFields{
		Project:     jira.Project{Key: c.cfg.EngProject},
		Summary:     req.Summary,
		Description: req.Description,
		Type:        jira.IssueType{Name: issueType},
		Unknowns:    unknowns,
	}
	if req.Component != "" {
		fields.Components = []*jira.Component{{Name: req.Component}}
	}
	if req.Assignee != "" {
		fields.Assignee = &jira.User{Name: req.Assignee}
	}

	issue, err := c.createIssue(ctx, fields, models.TypeTask)
	if err != nil {
		return models.Issue{}, err
	}
	issue.ParentKey = req.EpicKey

	logging.Info("created task", "key", issue.Key, "epic", req.EpicKey, "type", issueType)
	return issue, nil
}

// AddComment appends a comment to an issue.
func (c *Client) AddComment(ctx context.Context, issueKey, body string) error {
	err := c.withRetry(ctx, func(ctx context.Context) (*jira.Response, error) {
		_, resp, err := c.client.Issue.AddCommentWithContext(ctx, issueKey, &jira.Comment{Body: body})
		return resp, err
	})
	if err != nil {
		return fmt.Errorf("adding comment to %s: %w", issueKey, err)
	}
	return nil
}

// createIssue creates an issue and re-fetches it so callers get the full
// field set the tracker populated.
func (c *Client) createIssue(ctx context.Context, fields *jira.IssueFields, typ models.IssueType) (models.Issue, error) {
	var created *jira.Issue
	err := c.withRetry(ctx, func(ctx context.Context) (*jira.Response, error) {
		var resp *jira.Response
		var err error
		created, resp, err = c.client.Issue.CreateWithContext(ctx, &jira.Issue{Fields: fields})
		return resp, err
	})
	if err != nil {
		return models.Issue{}, fmt.Errorf("creating issue: %w", err)
	}

	var fetched *jira.Issue
	err = c.withRetry(ctx, func(ctx context.Context) (*jira.Response, error) {
		var resp *jira.Response
		var err error
		fetched, resp, err = c.client.Issue.GetWithContext(ctx, created.Key, nil)
		return resp, err
	})
	if err != nil {
		return models.Issue{}, fmt.Errorf("fetching created issue %s: %w", created.Key, err)
	}

	return c.convertIssue(*fetched, typ), nil
}

// search runs one logical JQL query, paging internally until the full result
// set is assembled. A page failure fails the whole call.
func (c *Client) search(ctx context.Context, jql string) ([]jira.Issue, error) {
	var all []jira.Issue
	opts := &jira.SearchOptions{
		MaxResults: searchPageSize,
		Fields:     searchFields,
	}

	for {
		var page []jira.Issue
		var resp *jira.Response
		err := c.withRetry(ctx, func(ctx context.Context) (*jira.Response, error) {
			var err error
			page, resp, err = c.client.Issue.SearchWithContext(ctx, jql, opts)
			return resp, err
		})
		if err != nil {
			return nil, err
		}

		all = append(all, page...)
		if len(page) == 0 || len(all) >= resp.Total {
			break
		}
		opts.StartAt = len(all)
	}

	logging.Debug("jira search complete", "jql", jql, "results", len(all))
	return all, nil
}

// withRetry runs one tracker call with a per-attempt timeout, retrying
// transient failures with exponential backoff. Exhaustion surfaces as
// ErrRemoteUnavailable; non-transient failures return immediately.
func (c *Client) withRetry(ctx context.Context, call func(ctx context.Context) (*jira.Response, error)) error {
	backoff := backoffBase
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, callTimeout)
		resp, err := call(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		classified, retryable := classify(resp, err)
		if !retryable {
			return classified
		}
		lastErr = classified

		logging.Warn("jira call failed",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", err)

		if attempt < maxAttempts {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
	}

	return lastErr
}

// classify maps a failed tracker response onto the error taxonomy and reports
// whether the failure is worth retrying.
func classify(resp *jira.Response, err error) (error, bool) {
	if resp == nil || resp.Response == nil {
		// Network-level failure, no HTTP status to inspect.
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err), true
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %v", ErrUnauthorized, err), false
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %v", ErrNotFound, err), false
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err), true
	default:
		return fmt.Errorf("%w: %v", ErrRemoteRejected, err), false
	}
}

// convertAll converts a page of tracker issues into the local model.
func (c *Client) convertAll(issues []jira.Issue, typ models.IssueType) []models.Issue {
	converted := make([]models.Issue, 0, len(issues))
	for _, issue := range issues {
		converted = append(converted, c.convertIssue(issue, typ))
	}
	return converted
}

// convertIssue builds the local issue model from a tracker response,
// resolving the hierarchy parent from the level-appropriate field.
func (c *Client) convertIssue(issue jira.Issue, typ models.IssueType) models.Issue {
	m := models.Issue{
		Key:      issue.Key,
		Type:     typ,
		Status:   "Unknown",
		Priority: "Undefined",
		Assignee: "Unassigned",
		Reporter: "Unknown",
	}

	fields := issue.Fields
	if fields == nil {
		return m
	}

	m.Summary = fields.Summary
	m.Description = fields.Description
	m.Labels = fields.Labels
	m.Created = time.Time(fields.Created)
	m.Updated = time.Time(fields.Updated)

	if fields.Status != nil {
		m.Status = fields.Status.Name
	}
	if fields.Priority != nil {
		m.Priority = fields.Priority.Name
	}
	if fields.Assignee != nil {
		m.Assignee = fields.Assignee.DisplayName
		m.AssigneeUsername = fields.Assignee.Name
	}
	if fields.Reporter != nil {
		m.Reporter = fields.Reporter.DisplayName
	}
	for _, component := range fields.Components {
		m.Components = append(m.Components, component.Name)
	}
	if fields.Comments != nil {
		for _, comment := range fields.Comments.Comments {
			m.Comments = append(m.Comments, models.Comment{
				Body:    comment.Body,
				Author:  comment.Author.DisplayName,
				Created: comment.Created,
			})
		}
	}
	if typ == models.TypeTask {
		m.RawType = fields.Type.Name
	}

	switch typ {
	case models.TypeStrat:
		m.ParentKey = linkedKeyWithPrefix(fields.IssueLinks, c.cfg.RFEProject+"-")
	case models.TypeEpic:
		if v, err := fields.Unknowns.String(fieldParentLink); err == nil {
			m.ParentKey = v
		}
	case models.TypeTask:
		if v, err := fields.Unknowns.String(fieldEpicLink); err == nil {
			m.ParentKey = v
		}
	}

	return m
}

// linkedKeyWithPrefix scans an issue's links for an issue in the project
// identified by prefix, checking both link directions.
func linkedKeyWithPrefix(links []*jira.IssueLink, prefix string) string {
	for _, link := range links {
		if link.InwardIssue != nil && strings.HasPrefix(link.InwardIssue.Key, prefix) {
			return link.InwardIssue.Key
		}
		if link.OutwardIssue != nil && strings.HasPrefix(link.OutwardIssue.Key, prefix) {
			return link.OutwardIssue.Key
		}
	}
	return ""
}
