package filter

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikey/llm-mail-triage/internal/core"
)

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func TestParseMessageMultipart(t *testing.T) {
	raw := crlf(`From: Alice Boss <Boss@Corp.com>
To: me@corp.com
Subject: =?UTF-8?B?Q2Fmw6k=?= meeting
Date: Mon, 02 Jan 2006 15:04:05 +0000
Message-Id: <abc@corp.com>
References: <root@corp.com> <parent@corp.com>
In-Reply-To: <parent@corp.com>
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: multipart/alternative; boundary="inner"

--inner
Content-Type: text/plain; charset=utf-8

Please review before the deadline.
--inner
Content-Type: text/html; charset=utf-8

<p>Please review</p>
--inner--
--outer
Content-Type: application/pdf
Content-Disposition: attachment; filename="report.pdf"

JVBERi0=
--outer--
`)

	msg, err := ParseMessage(raw, "envelope@corp.com")
	require.NoError(t, err)

	assert.Equal(t, "abc@corp.com", msg.ID)
	assert.Equal(t, "Café meeting", msg.Subject)
	assert.Equal(t, "Boss@Corp.com", msg.From.Email)
	assert.Equal(t, "Alice Boss", msg.From.Name)
	assert.Equal(t, "root@corp.com", msg.ThreadID)
	assert.Equal(t, core.CategoryPrimary, msg.Category)
	assert.True(t, msg.ReceivedAt.Equal(time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC)))
	assert.Contains(t, msg.Body, "before the deadline")
	assert.NotContains(t, msg.Body, "<p>")
	assert.Equal(t, []string{TagAttachment}, msg.Tags)
}

func TestParseMessageHTMLOnly(t *testing.T) {
	raw := crlf(`From: news@shop.example
Subject: Sale
List-Unsubscribe: <mailto:unsub@shop.example>
Precedence: bulk
Content-Type: text/html; charset=utf-8

<html><head><style>p { color: red }</style></head><body><p>Hello <b>there</b></p><script>track()</script></body></html>
`)

	msg, err := ParseMessage(raw, "")
	require.NoError(t, err)

	assert.Equal(t, "Hello there", msg.Body)
	assert.Equal(t, core.CategoryPromotions, msg.Category)
	assert.Empty(t, msg.Tags)
}

func TestParseMessageFallbacks(t *testing.T) {
	raw := crlf(`Subject: no headers
X-Flagged: yes

body
`)

	msg, err := ParseMessage(raw, "envelope@corp.com")
	require.NoError(t, err)

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "envelope@corp.com", msg.From.Email)
	assert.True(t, msg.ReceivedAt.IsZero())
	assert.True(t, msg.IsFlagged)
	assert.Empty(t, msg.ThreadID)

	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	receivedNow(msg, now)
	assert.Equal(t, now, msg.ReceivedAt)
}

func TestCategoryFromHeader(t *testing.T) {
	tests := []struct {
		name    string
		headers string
		want    core.Category
	}{
		{"explicit", "X-Category: Social\n", core.CategorySocial},
		{"unknown explicit falls through", "X-Category: misc\nList-Id: <dev.lists.example>\n", core.CategoryForums},
		{"mailing list", "List-Id: <dev.lists.example>\n", core.CategoryForums},
		{"notification", "List-Unsubscribe: <mailto:u@x>\n", core.CategoryUpdates},
		{"plain", "", core.CategoryPrimary},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := crlf("From: a@b.example\nSubject: x\n" + tt.headers + "\nbody\n")
			msg, err := ParseMessage(raw, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.Category)
		})
	}
}

func TestHTMLToText(t *testing.T) {
	assert.Equal(t, "a b c", htmlToText("<div>a</div>\n<span> b </span><style>x</style>c"))
	assert.Equal(t, "", htmlToText(""))
}
