package filter

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-message/textproto"
	"github.com/emersion/go-smtp"
	"github.com/mikey/llm-mail-triage/internal/core"
	"go.uber.org/zap"
)

// Triager is the part of the triage service a mail filter needs
type Triager interface {
	TriageMessage(ctx context.Context, msg *core.Message, t core.Thresholds) (*core.TriagedMessage, error)
	Thresholds() core.Thresholds
}

// Headers names the headers stamped on relayed mail
type Headers struct {
	Decision string
	Score    string
	Reason   string
}

// errorHeader is added when triage failed and the message was relayed untouched
const errorHeader = "X-Triage-Error"

// PostfixFilter implements a Postfix content filter that stamps each
// message with its triage decision before handing it back to Postfix
type PostfixFilter struct {
	triager        Triager
	logger         *zap.Logger
	listenAddr     string
	server         *smtp.Server
	listener       net.Listener
	blockSpam      bool
	headers        Headers
	postfixAddr    string
	postfixPort    int
	postfixEnabled bool
	timeout        time.Duration
	now            func() time.Time
}

// NewPostfixFilter creates a new Postfix content filter
func NewPostfixFilter(
	triager Triager,
	logger *zap.Logger,
	listenAddr string,
	blockSpam bool,
	headers Headers,
	postfixAddr string,
	postfixPort int,
	postfixEnabled bool,
) *PostfixFilter {
	if headers.Decision == "" {
		headers.Decision = "X-Triage-Decision"
	}
	if headers.Score == "" {
		headers.Score = "X-Attention-Score"
	}
	if headers.Reason == "" {
		headers.Reason = "X-Attention-Reason"
	}

	return &PostfixFilter{
		triager:        triager,
		logger:         logger,
		listenAddr:     listenAddr,
		blockSpam:      blockSpam,
		headers:        headers,
		postfixAddr:    postfixAddr,
		postfixPort:    postfixPort,
		postfixEnabled: postfixEnabled,
		timeout:        30 * time.Second,
		now:            time.Now,
	}
}

// Start starts the Postfix filter service
func (f *PostfixFilter) Start() error {
	l, err := net.Listen("tcp", f.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", f.listenAddr, err)
	}
	f.listener = l

	f.server = smtp.NewServer(&smtpBackend{filter: f})
	f.server.Addr = l.Addr().String()
	f.server.Domain = "localhost"
	f.server.ReadTimeout = 30 * time.Second
	f.server.WriteTimeout = 30 * time.Second
	f.server.MaxMessageBytes = 30 * 1024 * 1024 // 30MB
	f.server.MaxRecipients = 50

	f.logger.Info("Postfix filter starting", zap.String("address", f.server.Addr))

	go func() {
		if err := f.server.Serve(l); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
			f.logger.Error("SMTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Addr returns the address the filter is listening on
func (f *PostfixFilter) Addr() string {
	if f.listener == nil {
		return f.listenAddr
	}
	return f.listener.Addr().String()
}

// Stop stops the Postfix filter service
func (f *PostfixFilter) Stop() error {
	if f.server != nil {
		return f.server.Close()
	}
	return nil
}

// ProcessEmail triages a single message against the current thresholds
func (f *PostfixFilter) ProcessEmail(ctx context.Context, msg *core.Message) (*core.TriagedMessage, error) {
	return f.triager.TriageMessage(ctx, msg, f.triager.Thresholds())
}

// stamp returns raw with any existing triage headers removed and the
// result of this pass prepended
func (f *PostfixFilter) stamp(raw []byte, result *core.TriagedMessage, triageErr error) ([]byte, error) {
	br := bufio.NewReader(bytes.NewReader(raw))
	h, err := textproto.ReadHeader(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read message header: %w", err)
	}
	h.Del(f.headers.Decision)
	h.Del(f.headers.Score)
	h.Del(f.headers.Reason)
	h.Del(errorHeader)

	var out bytes.Buffer
	if triageErr != nil {
		fmt.Fprintf(&out, "%s: %s\r\n", f.headers.Decision, core.RegularInbox)
		fmt.Fprintf(&out, "%s: %s\r\n", errorHeader, headerValue(triageErr.Error()))
	} else {
		fmt.Fprintf(&out, "%s: %s\r\n", f.headers.Decision, result.Decision)
		fmt.Fprintf(&out, "%s: %.4f\r\n", f.headers.Score, result.Attention.Score)
		fmt.Fprintf(&out, "%s: %s\r\n", f.headers.Reason, headerValue(result.Attention.Explanation))
	}
	if err := textproto.WriteHeader(&out, h); err != nil {
		return nil, fmt.Errorf("failed to write message header: %w", err)
	}
	if _, err := io.Copy(&out, br); err != nil {
		return nil, fmt.Errorf("failed to copy message body: %w", err)
	}
	return out.Bytes(), nil
}

// headerValue folds a free-form string onto a single header line
func headerValue(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// sendToPostfix sends the processed email back to Postfix on the configured port using go-smtp
func (f *PostfixFilter) sendToPostfix(sender string, recipients []string, emailData []byte) error {
	postfixAddr := fmt.Sprintf("%s:%d", f.postfixAddr, f.postfixPort)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", postfixAddr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to Postfix: %w", err)
	}
	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}
	if err := c.Mail(sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	recipientOK := false
	for _, recipient := range recipients {
		if err := c.Rcpt(recipient, nil); err != nil {
			f.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", recipient),
				zap.Error(err))
			continue
		}
		recipientOK = true
	}
	if !recipientOK {
		return fmt.Errorf("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(emailData); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send email data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		// Message was already accepted
		f.logger.Warn("QUIT command failed", zap.Error(err))
	}

	return nil
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	filter *PostfixFilter
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{filter: b.filter}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	filter     *PostfixFilter
	sender     string
	recipients []string
}

// Reset resets the session state
func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = nil
}

// Mail sets the sender address
func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

// Rcpt adds a recipient
func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data triages the message, stamps it and relays it back to Postfix
func (s *smtpSession) Data(r io.Reader) error {
	f := s.filter

	raw, err := io.ReadAll(r)
	if err != nil {
		f.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	msg, err := ParseMessage(raw, s.sender)
	if err != nil {
		f.logger.Error("Failed to parse email message", zap.Error(err), zap.String("sender", s.sender))
		return &smtp.SMTPError{
			Code:         554,
			EnhancedCode: smtp.EnhancedCode{5, 6, 0},
			Message:      "Malformed message",
		}
	}
	receivedNow(msg, f.now())

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	result, triageErr := f.ProcessEmail(ctx, msg)
	if triageErr != nil {
		f.logger.Error("Failed to triage email",
			zap.Error(triageErr),
			zap.String("message_id", msg.ID),
			zap.String("sender", msg.From.Email))
	}

	if triageErr == nil && result.Decision == core.SpamFolder && f.blockSpam {
		f.logger.Info("Rejecting spam email",
			zap.String("message_id", msg.ID),
			zap.String("from", msg.From.Email),
			zap.Float64("spam_score", result.Spam.Score),
			zap.String("model", result.Spam.ModelUsed))
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 7, 1},
			Message:      fmt.Sprintf("Rejected as spam (score: %.2f)", result.Spam.Score),
		}
	}

	stamped, err := f.stamp(raw, result, triageErr)
	if err != nil {
		f.logger.Error("Failed to stamp triage headers", zap.Error(err), zap.String("message_id", msg.ID))
		stamped = raw
	}

	if f.postfixEnabled {
		if err := f.sendToPostfix(s.sender, s.recipients, stamped); err != nil {
			f.logger.Error("Failed to send email back to Postfix",
				zap.Error(err),
				zap.String("sender", s.sender))
			return err
		}
	} else {
		f.logger.Warn("Postfix forwarding disabled, this is likely a misconfiguration")
	}

	if triageErr == nil {
		f.logger.Info("Processed email",
			zap.String("message_id", msg.ID),
			zap.String("from", msg.From.Email),
			zap.String("decision", string(result.Decision)),
			zap.Float64("attention_score", result.Attention.Score))
	}

	return nil
}

// Logout handles SMTP logout
func (s *smtpSession) Logout() error {
	return nil
}
