package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forgeloop/pkg/llm"
	"forgeloop/pkg/session"
	"forgeloop/pkg/templates"
)

const planReply = `{
  "global_style": {"color_scheme": "light", "shadcn_components": ["Button"], "style_description": "clean"},
  "files": [
    {"path": "src", "filename": "App.tsx", "functions": [{"name": "App", "description": "root"}], "dependencies": [], "props": "interface AppProps {}"}
  ]
}`

func newTestPlanner(t *testing.T, client llm.Client) (*Planner, *session.Registry) {
	t.Helper()
	renderer, err := templates.NewRenderer()
	require.NoError(t, err)
	sessions := session.NewRegistry(session.Options{})
	return New(client, sessions, renderer, nil, 0, 0), sessions
}

func TestGenerateReturnsPlan(t *testing.T) {
	mock := llm.NewMockTextClient(planReply)
	p, sessions := newTestPlanner(t, mock)

	res := p.Generate(context.Background(), "build a dashboard", "", nil)

	require.Equal(t, KindPlan, res.Kind)
	require.NotNil(t, res.Plan)
	assert.Equal(t, "App.tsx", res.Plan.Files[0].Filename)
	assert.NotEmpty(t, res.SessionID)

	// Turn pair recorded for the next round.
	history := sessions.History(res.SessionID)
	require.Len(t, history, 2)
	assert.Equal(t, llm.RoleUser, history[0].Role)
	assert.Equal(t, "build a dashboard", history[0].Content)
	assert.Equal(t, llm.RoleAssistant, history[1].Role)
}

func TestGenerateClassifiesQuestion(t *testing.T) {
	mock := llm.NewMockTextClient("What pages should the dashboard have?")
	p, sessions := newTestPlanner(t, mock)

	res := p.Generate(context.Background(), "build something", "", nil)

	assert.Equal(t, KindQuestion, res.Kind)
	assert.Equal(t, "What pages should the dashboard have?", res.Content)
	assert.Nil(t, res.Plan)
	// Question turns are kept too; the caller may answer in-session.
	assert.Len(t, sessions.History(res.SessionID), 2)
}

func TestGenerateClassifiesParseFailureAsError(t *testing.T) {
	mock := llm.NewMockTextClient(`{"files": [{"filename": "A.tsx"}, {"filename": "A.tsx"}]}`)
	p, _ := newTestPlanner(t, mock)

	res := p.Generate(context.Background(), "build", "", nil)

	assert.Equal(t, KindError, res.Kind)
	assert.Contains(t, res.Content, "duplicate filename")
}

func TestGenerateEmptyResponse(t *testing.T) {
	mock := llm.NewMockTextClient("   ")
	p, sessions := newTestPlanner(t, mock)

	res := p.Generate(context.Background(), "build", "", nil)

	assert.Equal(t, KindError, res.Kind)
	// No turn pair is recorded when nothing usable came back.
	assert.Empty(t, sessions.History(res.SessionID))
}

func TestGenerateTransportError(t *testing.T) {
	mock := llm.NewMockClient(nil, []error{context.DeadlineExceeded})
	p, sessions := newTestPlanner(t, mock)

	res := p.Generate(context.Background(), "build", "", nil)

	assert.Equal(t, KindError, res.Kind)
	assert.Empty(t, sessions.History(res.SessionID))
}

func TestGenerateReusesSession(t *testing.T) {
	mock := llm.NewMockTextClient("Which color scheme?", planReply)
	p, sessions := newTestPlanner(t, mock)

	first := p.Generate(context.Background(), "build a site", "", nil)
	require.Equal(t, KindQuestion, first.Kind)

	second := p.Generate(context.Background(), "dark theme please", first.SessionID, nil)
	require.Equal(t, KindPlan, second.Kind)
	assert.Equal(t, first.SessionID, second.SessionID)

	// The second request must carry the whole prior exchange.
	reqs := mock.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[1].Messages, 4) // system + prior pair + new user
	assert.Len(t, sessions.History(first.SessionID), 4)
}

func TestGenerateAttachesImages(t *testing.T) {
	mock := llm.NewMockTextClient(planReply)
	p, _ := newTestPlanner(t, mock)

	att := []llm.Attachment{{MIMEType: "image/png", Data: []byte{1, 2, 3}}}
	res := p.Generate(context.Background(), "match this mockup", "", att)
	require.Equal(t, KindPlan, res.Kind)

	reqs := mock.Requests()
	require.Len(t, reqs, 1)
	last := reqs[0].Messages[len(reqs[0].Messages)-1]
	require.Len(t, last.Attachments, 1)
	assert.Equal(t, "image/png", last.Attachments[0].MIMEType)
}
