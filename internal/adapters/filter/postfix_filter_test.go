package filter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-triage/internal/core"
)

type stubTriager struct {
	mu       sync.Mutex
	decision core.Decision
	err      error
	seen     []core.Message
}

func (s *stubTriager) TriageMessage(_ context.Context, msg *core.Message, _ core.Thresholds) (*core.TriagedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, *msg)
	if s.err != nil {
		return nil, s.err
	}
	return &core.TriagedMessage{
		Message:  *msg,
		Decision: s.decision,
		Attention: core.AttentionScore{
			Score:       0.42,
			Explanation: "Medium attention (0.42):\nsender has medium importance",
		},
		Spam: core.SpamVerdict{IsSpam: s.decision == core.SpamFolder, Score: 0.9, ModelUsed: "stub"},
	}, nil
}

func (s *stubTriager) Thresholds() core.Thresholds {
	return core.DefaultThresholds()
}

// relayed captures messages delivered to a fake Postfix
type relayed struct {
	mu   sync.Mutex
	from []string
	data [][]byte
}

func (r *relayed) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &relaySession{r: r}, nil
}

func (r *relayed) messages() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.data...)
}

type relaySession struct {
	r    *relayed
	from string
}

func (s *relaySession) Reset()        {}
func (s *relaySession) Logout() error { return nil }

func (s *relaySession) Mail(from string, _ *smtp.MailOptions) error {
	s.from = from
	return nil
}

func (s *relaySession) Rcpt(string, *smtp.RcptOptions) error { return nil }

func (s *relaySession) Data(r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	s.r.from = append(s.r.from, s.from)
	s.r.data = append(s.r.data, b)
	return nil
}

// startRelay runs a fake Postfix and returns its host and port
func startRelay(t *testing.T) (*relayed, string, int) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	r := &relayed{}
	srv := smtp.NewServer(r)
	srv.Domain = "localhost"
	go srv.Serve(l)
	t.Cleanup(func() { srv.Close() })

	addr := l.Addr().(*net.TCPAddr)
	return r, addr.IP.String(), addr.Port
}

func newTestFilter(t *testing.T, triager Triager, blockSpam bool) (*PostfixFilter, *relayed) {
	t.Helper()
	r, host, port := startRelay(t)
	f := NewPostfixFilter(triager, zap.NewNop(), "127.0.0.1:0", blockSpam, Headers{}, host, port, true)
	return f, r
}

var spoofed = crlf(`From: boss@corp.com
To: me@corp.com
Subject: Quarterly numbers
Message-Id: <q1@corp.com>
X-Triage-Decision: priority_inbox

Numbers attached.
`)

func TestSessionStampsAndRelays(t *testing.T) {
	triager := &stubTriager{decision: core.RegularInbox}
	f, r := newTestFilter(t, triager, false)

	s := &smtpSession{filter: f}
	require.NoError(t, s.Mail("boss@corp.com", nil))
	require.NoError(t, s.Rcpt("me@corp.com", nil))
	require.NoError(t, s.Data(bytes.NewReader(spoofed)))

	msgs := r.messages()
	require.Len(t, msgs, 1)
	out := string(msgs[0])

	assert.True(t, strings.HasPrefix(out, "X-Triage-Decision: regular_inbox"))
	assert.Equal(t, 1, strings.Count(out, "X-Triage-Decision"))
	assert.Contains(t, out, "X-Attention-Score: 0.4200")
	assert.Contains(t, out, "X-Attention-Reason: Medium attention (0.42): sender has medium importance")
	assert.Contains(t, out, "Subject: Quarterly numbers")
	assert.Contains(t, out, "Numbers attached.")

	require.Len(t, triager.seen, 1)
	assert.Equal(t, "q1@corp.com", triager.seen[0].ID)
	assert.False(t, triager.seen[0].ReceivedAt.IsZero())
}

func TestSessionRejectsSpam(t *testing.T) {
	f, r := newTestFilter(t, &stubTriager{decision: core.SpamFolder}, true)

	s := &smtpSession{filter: f}
	require.NoError(t, s.Mail("winner@lottery.example", nil))
	require.NoError(t, s.Rcpt("me@corp.com", nil))
	err := s.Data(bytes.NewReader(spoofed))

	var smtpErr *smtp.SMTPError
	require.ErrorAs(t, err, &smtpErr)
	assert.Equal(t, 550, smtpErr.Code)
	assert.Empty(t, r.messages())
}

func TestSessionRelaysSpamWhenNotBlocking(t *testing.T) {
	f, r := newTestFilter(t, &stubTriager{decision: core.SpamFolder}, false)

	s := &smtpSession{filter: f}
	require.NoError(t, s.Mail("winner@lottery.example", nil))
	require.NoError(t, s.Rcpt("me@corp.com", nil))
	require.NoError(t, s.Data(bytes.NewReader(spoofed)))

	msgs := r.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, string(msgs[0]), "X-Triage-Decision: spam_folder")
}

func TestSessionTriageFailure(t *testing.T) {
	f, r := newTestFilter(t, &stubTriager{err: errors.New("store unavailable")}, true)

	s := &smtpSession{filter: f}
	require.NoError(t, s.Mail("boss@corp.com", nil))
	require.NoError(t, s.Rcpt("me@corp.com", nil))
	require.NoError(t, s.Data(bytes.NewReader(spoofed)))

	msgs := r.messages()
	require.Len(t, msgs, 1)
	out := string(msgs[0])
	assert.Contains(t, out, "X-Triage-Decision: regular_inbox")
	assert.Contains(t, out, "X-Triage-Error: store unavailable")
	assert.NotContains(t, out, "X-Attention-Score")
}

func TestFilterEndToEnd(t *testing.T) {
	triager := &stubTriager{decision: core.PriorityInbox}
	f, r := newTestFilter(t, triager, false)
	require.NoError(t, f.Start())
	t.Cleanup(func() { f.Stop() })

	err := smtp.SendMail(f.Addr(), nil, "boss@corp.com", []string{"me@corp.com"}, bytes.NewReader(spoofed))
	require.NoError(t, err)

	msgs := r.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, string(msgs[0]), "X-Triage-Decision: priority_inbox")
	assert.Equal(t, 1, strings.Count(string(msgs[0]), "X-Triage-Decision"))
}

func TestCliFilterReport(t *testing.T) {
	var out bytes.Buffer
	f := NewCliFilter(&stubTriager{decision: core.PriorityInbox}, zap.NewNop(), nil, &out, false)

	result, err := f.ProcessEmail(context.Background(), &core.Message{ID: "m1", Subject: "Hi", From: core.Address{Email: "boss@corp.com"}})
	require.NoError(t, err)
	assert.Equal(t, core.PriorityInbox, result.Decision)
	assert.Contains(t, out.String(), "Decision: priority_inbox")
	assert.Contains(t, out.String(), "Attention score: 0.4200")
}
