package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/newsdigest/internal/config"
	"github.com/teemow/newsdigest/internal/digest"
	"github.com/teemow/newsdigest/internal/gmail"
	"github.com/teemow/newsdigest/internal/llm"
)

type nopFetcher struct{ account string }

func (nopFetcher) FetchBodies(context.Context, gmail.FetchOptions) ([]gmail.Body, error) {
	return []gmail.Body{}, nil
}

type nopCompleter struct{}

func (nopCompleter) Complete(context.Context, llm.Request) (string, error) { return "", nil }

func TestServerContext_FetcherCachedPerAccount(t *testing.T) {
	created := map[string]int{}
	sc, err := NewServerContext(context.Background(), config.Default(),
		WithFetcherFactory(func(_ context.Context, account string) (digest.Fetcher, error) {
			created[account]++
			return nopFetcher{account: account}, nil
		}),
	)
	require.NoError(t, err)
	defer sc.Shutdown()

	f1, err := sc.Fetcher("")
	require.NoError(t, err)
	f2, err := sc.Fetcher("default")
	require.NoError(t, err)
	_, err = sc.Fetcher("work")
	require.NoError(t, err)

	assert.Equal(t, f1, f2)
	assert.Equal(t, map[string]int{"default": 1, "work": 1}, created)
}

func TestServerContext_FactoryErrorNotCached(t *testing.T) {
	calls := 0
	sc, err := NewServerContext(context.Background(), config.Default(),
		WithCompleterFactory(func() (llm.Completer, error) {
			calls++
			if calls == 1 {
				return nil, llm.ErrMissingAPIKey
			}
			return nopCompleter{}, nil
		}),
	)
	require.NoError(t, err)
	defer sc.Shutdown()

	_, err = sc.Completer()
	assert.ErrorIs(t, err, llm.ErrMissingAPIKey)

	c, err := sc.Completer()
	require.NoError(t, err)
	assert.NotNil(t, c)
	assert.Equal(t, 2, calls)
}

func TestServerContext_PipelineWithoutModel(t *testing.T) {
	sc, err := NewServerContext(context.Background(), config.Default(),
		WithFetcherFactory(func(context.Context, string) (digest.Fetcher, error) { return nopFetcher{}, nil }),
		WithCompleterFactory(func() (llm.Completer, error) { return nil, errors.New("must not be called") }),
	)
	require.NoError(t, err)
	defer sc.Shutdown()

	p, err := sc.Pipeline("", false)
	require.NoError(t, err)

	_, err = p.Topics(context.Background(), nil, digest.Options{})
	assert.ErrorIs(t, err, digest.ErrNoCompleter)

	_, err = sc.Pipeline("", true)
	assert.EqualError(t, err, "must not be called")
}

func TestServerContext_Shutdown(t *testing.T) {
	sc, err := NewServerContext(context.Background(), config.Default(),
		WithFetcherFactory(func(context.Context, string) (digest.Fetcher, error) { return nopFetcher{}, nil }),
	)
	require.NoError(t, err)

	require.NoError(t, sc.Shutdown())
	require.NoError(t, sc.Shutdown())
	assert.True(t, sc.IsShutdown())
	assert.Error(t, sc.Context().Err())

	_, err = sc.Fetcher("")
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestServerContext_SlowFetcherDoesNotBlockOthers(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	sc, err := NewServerContext(context.Background(), config.Default(),
		WithFetcherFactory(func(_ context.Context, account string) (digest.Fetcher, error) {
			if account == "slow" {
				close(started)
				<-release
			}
			return nopFetcher{account: account}, nil
		}),
	)
	require.NoError(t, err)

	slowErr := make(chan error, 1)
	go func() {
		_, err := sc.Fetcher("slow")
		slowErr <- err
	}()
	<-started

	done := make(chan error, 1)
	go func() {
		_, err := sc.Fetcher("fast")
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("fetcher for another account waited on a pending authorization")
	}

	shut := make(chan error, 1)
	go func() { shut <- sc.Shutdown() }()
	select {
	case err := <-shut:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown waited on a pending authorization")
	}

	close(release)
	assert.ErrorIs(t, <-slowErr, ErrShutdown)
}

func TestNewServerContext_RequiresConfig(t *testing.T) {
	_, err := NewServerContext(context.Background(), nil)
	assert.Error(t, err)
}

func TestDigestOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Gmail.Query = "from:digest"
	cfg.Gmail.WindowDays = 2
	cfg.Gmail.AllPages = true
	cfg.Digest.Paragraphs = 3
	cfg.OpenAI.TopicsMaxTokens = 111

	opts := DigestOptions(cfg)
	assert.Equal(t, gmail.FetchOptions{Query: "from:digest", WindowDays: 2, AllPages: true}, opts.Fetch)
	assert.Equal(t, 3, opts.Paragraphs)
	assert.Equal(t, 111, opts.TopicsMaxTokens)
}
