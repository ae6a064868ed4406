package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/course-orderflow/internal/auth"
	"github.com/imrishuroy/course-orderflow/internal/config"
	"github.com/imrishuroy/course-orderflow/internal/orders"
	"github.com/imrishuroy/course-orderflow/internal/signature"
)

type fakeAdmin struct {
	existing map[string]bool
	created  []string
	ttl      *dyn.UpdateTimeToLiveInput
}

func (f *fakeAdmin) CreateTable(_ context.Context, in *dyn.CreateTableInput, _ ...func(*dyn.Options)) (*dyn.CreateTableOutput, error) {
	if f.existing[*in.TableName] {
		return nil, &types.ResourceInUseException{}
	}
	f.created = append(f.created, *in.TableName)
	return &dyn.CreateTableOutput{}, nil
}

func (f *fakeAdmin) UpdateTimeToLive(_ context.Context, in *dyn.UpdateTimeToLiveInput, _ ...func(*dyn.Options)) (*dyn.UpdateTimeToLiveOutput, error) {
	f.ttl = in
	return &dyn.UpdateTimeToLiveOutput{}, nil
}

var testTables = config.TablesConfig{Orders: "orders", Earnings: "instructor_earnings", Idempotency: "idempotency"}

func TestCreateTables_SkipsExisting(t *testing.T) {
	admin := &fakeAdmin{existing: map[string]bool{"orders": true}}
	var out bytes.Buffer

	require.NoError(t, createTables(context.Background(), admin, testTables, &out))
	assert.Equal(t, []string{"instructor_earnings", "idempotency"}, admin.created)
	assert.Contains(t, out.String(), "orders: exists, skipping")
	require.NotNil(t, admin.ttl)
	assert.Equal(t, "idempotency", *admin.ttl.TableName)
	assert.Equal(t, "expires_at", *admin.ttl.TimeToLiveSpecification.AttributeName)
}

func TestTableDefinitions_OrderIndexes(t *testing.T) {
	defs := tableDefinitions(testTables)
	require.Len(t, defs, 3)

	ordersDef := defs[0]
	names := map[string][]string{}
	for _, gsi := range ordersDef.GlobalSecondaryIndexes {
		for _, k := range gsi.KeySchema {
			names[*gsi.IndexName] = append(names[*gsi.IndexName], *k.AttributeName)
		}
	}
	assert.Equal(t, []string{"user_id", "created_ms"}, names[orders.UserIndex])
	assert.Equal(t, []string{"kind", "created_ms"}, names[orders.KindIndex])

	// every key attribute must be defined, and nothing else
	defined := map[string]bool{}
	for _, a := range ordersDef.AttributeDefinitions {
		defined[*a.AttributeName] = true
	}
	assert.Len(t, defined, 4)
	for _, attr := range []string{"order_id", "user_id", "kind", "created_ms"} {
		assert.True(t, defined[attr], attr)
	}
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestSignWebhook_FromStdin(t *testing.T) {
	t.Setenv("RAZORPAY_WEBHOOK_SECRET", "webhook-secret")
	body := `{"event":"payment.captured"}`

	got, err := run(t, body, "sign-webhook")
	require.NoError(t, err)

	want, err := signature.NewVerifier("webhook-secret").Sign([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSignWebhook_NoSecret(t *testing.T) {
	t.Setenv("RAZORPAY_WEBHOOK_SECRET", "")
	_, err := run(t, "{}", "sign-webhook", "-")
	assert.ErrorIs(t, err, signature.ErrNotConfigured)
}

func TestSignPayment_UsesMockSecretInMockMode(t *testing.T) {
	t.Setenv("PAYMENT_MODE", "mock")
	t.Setenv("RAZORPAY_KEY_SECRET", "live-secret")

	got, err := run(t, "", "sign-payment", "mock_order_1", "pay_1")
	require.NoError(t, err)

	v := signature.NewVerifier("mock_key_secret")
	assert.NoError(t, v.Verify(signature.PaymentMessage("mock_order_1", "pay_1"), got))
}

func TestIssueToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "jwt-secret")

	tok, err := run(t, "", "issue-token", "--user", "42", "--role", "admin")
	require.NoError(t, err)

	caller, err := auth.NewAuthenticator("jwt-secret").Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, auth.Caller{UserID: 42, Role: auth.RoleAdmin}, caller)

	_, err = run(t, "", "issue-token")
	assert.Error(t, err)
}
