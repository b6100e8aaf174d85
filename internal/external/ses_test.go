package external

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luach/internal/types"
)

type mockSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (m *mockSES) SendEmail(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.input = params
	if m.err != nil {
		return nil, m.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-msg-1")}, nil
}

func sesInput() types.SendInput {
	return types.SendInput{
		From:        types.EmailAddress{Name: "Luach Reminders", Address: "reminders@luach.email"},
		To:          "a@example.com",
		Subject:     "Yahrzeit of Sarah: Thursday, March 13",
		BodyText:    "plain body",
		BodyHTML:    "<p>html body</p>",
		Headers:     map[string]string{"List-Unsubscribe": "<https://luach.example/u>"},
		ReferenceID: "ref-1",
	}
}

func TestSESSend_SimpleContent(t *testing.T) {
	mock := &mockSES{}
	client := NewSESClientWithAPI(mock, SESClientConfig{ConfigSetName: "feedback"})

	msgID, err := client.Send(context.Background(), sesInput())
	require.NoError(t, err)
	assert.Equal(t, "ses-msg-1", msgID)

	require.NotNil(t, mock.input)
	assert.Equal(t, "Luach Reminders <reminders@luach.email>", aws.ToString(mock.input.FromEmailAddress))
	assert.Equal(t, []string{"a@example.com"}, mock.input.Destination.ToAddresses)
	assert.Equal(t, "feedback", aws.ToString(mock.input.ConfigurationSetName))

	simple := mock.input.Content.Simple
	require.NotNil(t, simple)
	assert.Nil(t, mock.input.Content.Raw)
	assert.Equal(t, "plain body", aws.ToString(simple.Body.Text.Data))
	assert.Equal(t, "<p>html body</p>", aws.ToString(simple.Body.Html.Data))
	require.Len(t, simple.Headers, 1)
	assert.Equal(t, "List-Unsubscribe", aws.ToString(simple.Headers[0].Name))

	require.Len(t, mock.input.EmailTags, 1)
	assert.Equal(t, "ref-1", aws.ToString(mock.input.EmailTags[0].Value))
}

func TestSESSend_RawMIMEWithAttachment(t *testing.T) {
	mock := &mockSES{}
	client := NewSESClientWithAPI(mock, SESClientConfig{})

	input := sesInput()
	input.ICS = []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n")

	_, err := client.Send(context.Background(), input)
	require.NoError(t, err)

	require.NotNil(t, mock.input.Content.Raw)
	assert.Nil(t, mock.input.Content.Simple)

	raw := string(mock.input.Content.Raw.Data)
	assert.Contains(t, raw, "Content-Type: multipart/mixed;")
	assert.Contains(t, raw, "Content-Type: multipart/alternative;")
	assert.Contains(t, raw, "Content-Type: text/plain; charset=\"UTF-8\"")
	assert.Contains(t, raw, "Content-Type: text/html; charset=\"UTF-8\"")
	assert.Contains(t, raw, "Content-Type: text/calendar; method=PUBLISH;")
	assert.Contains(t, raw, "Content-Disposition: attachment; filename=\"event.ics\"")
	assert.Contains(t, raw, "List-Unsubscribe: <https://luach.example/u>")
	assert.True(t, strings.HasPrefix(raw, "From: Luach Reminders <reminders@luach.email>\r\n"))
}

func TestSESSend_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want types.ErrorCode
	}{
		{"rejected", &sestypes.MessageRejected{}, types.ErrCodeEmailBlocked},
		{"throttled", &sestypes.TooManyRequestsException{}, types.ErrCodeUpstreamRateLimited},
		{"paused", &sestypes.SendingPausedException{}, types.ErrCodeUpstreamUnavailable},
		{"other", errors.New("dial tcp: connection refused"), types.ErrCodeUpstreamEmailProvider},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := NewSESClientWithAPI(&mockSES{err: tc.err}, SESClientConfig{})

			_, err := client.Send(context.Background(), sesInput())
			require.Error(t, err)

			var appErr *types.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tc.want, appErr.Code)
		})
	}
}
