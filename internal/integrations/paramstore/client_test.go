package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a simple fake implementing ssmAPI for tests.
type fakeAPI struct {
	getOut   *ssm.GetParameterOutput
	getErr   error
	lastName string
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	if in != nil && in.Name != nil {
		f.lastName = *in.Name
	}
	return f.getOut, f.getErr
}

func strPtr(s string) *string { return &s }

func valueOut(v string) *ssm.GetParameterOutput {
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: strPtr("p"), Value: strPtr(v)}}
}

func TestGetParameter_ResolvesRelativeNamesUnderPrefix(t *testing.T) {
	api := &fakeAPI{getOut: valueOut(`{"token":"v"}`)}
	client, err := New(api, "/antenatal-agent/")
	require.NoError(t, err)

	v, err := client.GetParameter(context.Background(), "whatsapp/verify-token")
	require.NoError(t, err)
	require.Equal(t, `{"token":"v"}`, v)
	require.Equal(t, "/antenatal-agent/whatsapp/verify-token", api.lastName)
}

func TestGetParameter_AbsoluteNameIsKept(t *testing.T) {
	api := &fakeAPI{getOut: valueOut("x")}
	client, err := New(api, "/antenatal-agent")
	require.NoError(t, err)

	_, err = client.GetParameter(context.Background(), "/other/param")
	require.NoError(t, err)
	require.Equal(t, "/other/param", api.lastName)
}

func TestGetParameter_MissingValue(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: strPtr("p"), Value: nil}}}
	client, err := New(api, "")
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing value")
}

func TestGetParameter_ApiError(t *testing.T) {
	api := &fakeAPI{getErr: errors.New("boom")}
	client, err := New(api, "")
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "boom")
}

func TestGetParameter_ClientNotInitialized(t *testing.T) {
	_, err := (&Client{}).GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "not initialized")
}

func TestGetParameter_EmptyName(t *testing.T) {
	client, err := New(&fakeAPI{}, "")
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "  ")
	require.ErrorContains(t, err, "required")
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil, "/prefix")
	require.ErrorContains(t, err, "must not be nil")
}

type fakeGetter struct {
	val string
	err error
}

func (f *fakeGetter) GetParameter(_ context.Context, _ string) (string, error) {
	return f.val, f.err
}

func TestToken(t *testing.T) {
	v, err := Token(context.Background(), &fakeGetter{val: `{"token":" abc "}`}, "whatsapp/access-token", false)
	require.NoError(t, err)
	require.Equal(t, "abc", v)
}

func TestToken_Empty(t *testing.T) {
	_, err := Token(context.Background(), &fakeGetter{val: `{"token":""}`}, "whatsapp/access-token", false)
	require.ErrorContains(t, err, "is empty")

	v, err := Token(context.Background(), &fakeGetter{val: `{"token":""}`}, "whatsapp/app-secret", true)
	require.NoError(t, err)
	require.Empty(t, v)
}

func TestToken_Errors(t *testing.T) {
	_, err := Token(context.Background(), &fakeGetter{val: `{"broken`}, "x", false)
	require.ErrorContains(t, err, "unmarshal")

	_, err = Token(context.Background(), &fakeGetter{err: errors.New("ssm unavailable")}, "x", false)
	require.ErrorContains(t, err, "ssm unavailable")

	_, err = Token(context.Background(), nil, "x", false)
	require.ErrorContains(t, err, "nil")

	_, err = Token(context.Background(), &fakeGetter{}, " ", false)
	require.ErrorContains(t, err, "empty")
}
