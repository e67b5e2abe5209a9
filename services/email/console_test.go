package emailsvc

import (
	"bytes"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexlms/codex/core"
)

func TestConsoleServiceMock_SendMessages(t *testing.T) {
	svc := NewConsoleServiceMock(core.NewTestConfig())
	to := []mail.Address{{Name: "Ada", Address: "ada@test.cd"}}

	svc.SendMessages(
		&core.EmailMessage{To: to, Subject: "plain", BodyStr: "hello"},
		&core.EmailMessage{Subject: "no recipients", BodyStr: "hello"},
		&core.EmailMessage{To: to, Subject: "no content"},
		&core.EmailMessage{
			To:           to,
			Subject:      "templated",
			TemplateName: "new_message",
			TemplateData: map[string]string{"RecipientName": "Ada", "Title": "Exam moved", "Body": "Friday 10am"},
		},
	)

	sent := svc.SentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, "hello", sent[0].TextContent)
	assert.Contains(t, sent[1].TextContent, "Hi Ada,")
	assert.Contains(t, sent[1].TextContent, "You have a new message: Exam moved")
	assert.Contains(t, sent[1].TextContent, "http://localhost:3000/messages")
	assert.Contains(t, sent[1].HTMLContent, "<b>Exam moved</b>")

	svc.Reset()
	assert.Empty(t, svc.SentMessages())
}

func TestConsoleService_format(t *testing.T) {
	svc := NewConsoleServiceMock(core.NewTestConfig())
	msg := core.EmailMessage{
		To:          []mail.Address{{Address: "ada@test.cd"}},
		Subject:     "Gradebook",
		TextContent: "see attached",
	}
	require.NoError(t, msg.Attach(bytes.NewBufferString("a,b\n1,2\n"), "grades.csv", "text/csv"))

	body, err := svc.format(msg)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(body, "From: \"Code-X\" <noreply@localhost>\r\n"))
	assert.Contains(t, body, "Subject: [Code-X] Gradebook\r\n")
	assert.Contains(t, body, "Content-Type: multipart/mixed; boundary=")
	assert.Contains(t, body, "attachment; filename=grades.csv")
	assert.Contains(t, body, "YSxiCjEsMgo=") // base64 of the attachment
}
