package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/teemow/newsdigest/internal/instrumentation"
	"github.com/teemow/newsdigest/internal/logging"
)

// ErrAuth is wrapped by every error that leaves the caller without a usable
// credential.
var ErrAuth = errors.New("google authentication failed")

// DefaultAuthTimeout bounds how long the interactive flow waits for the
// browser callback.
const DefaultAuthTimeout = 5 * time.Minute

// Options configures an Authenticator.
type Options struct {
	// Account selects the token file (default: "default").
	Account string

	// ClientSecretsFile is the OAuth client JSON downloaded from the Google
	// Cloud console. Only needed to refresh or to authorize interactively.
	ClientSecretsFile string

	// TokenDir overrides where token files live.
	TokenDir string

	// Scopes requested during authorization (default: DefaultOAuthScopes).
	Scopes []string

	Logger  logging.Logger
	Metrics *instrumentation.Metrics

	// OpenBrowser is called with the consent URL. Nil only prints the URL.
	OpenBrowser func(url string) error

	// Prompt receives the consent URL instructions (default: os.Stderr).
	Prompt io.Writer

	// AuthTimeout bounds the wait for the callback (default: DefaultAuthTimeout).
	AuthTimeout time.Duration
}

// Authenticator produces HTTP clients authorized for one mailbox account.
type Authenticator struct {
	account     string
	secretsFile string
	scopes      []string
	store       *TokenStore
	logger      logging.Logger
	metrics     *instrumentation.Metrics
	openBrowser func(string) error
	prompt      io.Writer
	authTimeout time.Duration
}

// NewAuthenticator validates opts and returns an Authenticator.
func NewAuthenticator(opts Options) (*Authenticator, error) {
	if opts.Account == "" {
		opts.Account = DefaultAccount
	}
	if err := ValidateAccountName(opts.Account); err != nil {
		return nil, err
	}
	if len(opts.Scopes) == 0 {
		opts.Scopes = DefaultOAuthScopes
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewSlogAdapter(nil)
	}
	if opts.Prompt == nil {
		opts.Prompt = os.Stderr
	}
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = DefaultAuthTimeout
	}

	return &Authenticator{
		account:     opts.Account,
		secretsFile: opts.ClientSecretsFile,
		scopes:      opts.Scopes,
		store:       NewTokenStore(opts.TokenDir),
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		openBrowser: opts.OpenBrowser,
		prompt:      opts.Prompt,
		authTimeout: opts.AuthTimeout,
	}, nil
}

// Account returns the account name the authenticator serves.
func (a *Authenticator) Account() string {
	return a.account
}

// TokenPath returns the token file the authenticator reads and writes.
func (a *Authenticator) TokenPath() string {
	return a.store.Path(a.account)
}

// Forget deletes the stored token so the next TokenSource call runs the
// interactive flow.
func (a *Authenticator) Forget() error {
	return a.store.Delete(a.account)
}

// Authenticate returns an HTTP client that attaches the account's token to
// every request.
func (a *Authenticator) Authenticate(ctx context.Context) (*http.Client, error) {
	ts, err := a.TokenSource(ctx)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, ts), nil
}

// TokenSource resolves a token for the account. A valid cached token is used
// as-is, an expired one with a refresh token is refreshed, and anything else
// triggers interactive authorization.
func (a *Authenticator) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	tok, err := a.store.Load(a.account)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		a.logger.Warn("ignoring unreadable token file", "path", a.TokenPath(), "error", err)
	}
	if err != nil {
		tok = nil
	}

	conf, confErr := a.oauthConfig()

	if tok != nil && tok.Valid() {
		a.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultCached)
		if confErr != nil {
			a.logger.Warn("client secrets unavailable, token will not be refreshed when it expires",
				"account", a.account, "error", confErr)
			return oauth2.StaticTokenSource(tok), nil
		}
		a.logger.Debug("using cached token", "account", a.account)
		return a.persisting(ctx, conf, tok), nil
	}

	if confErr != nil {
		a.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		return nil, fmt.Errorf("%w: %w", ErrAuth, confErr)
	}

	if tok != nil && tok.RefreshToken != "" {
		refreshed, err := conf.TokenSource(ctx, tok).Token()
		if err != nil {
			a.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
			a.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
			return nil, fmt.Errorf("%w: refreshing token: %w", ErrAuth, err)
		}
		a.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSuccess)
		if err := a.store.Save(a.account, refreshed); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAuth, err)
		}
		a.logger.Info("refreshed token", "account", a.account, "token", logging.SanitizeToken(refreshed.AccessToken))
		a.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess)
		return a.persisting(ctx, conf, refreshed), nil
	}

	fresh, err := a.authorize(ctx, conf)
	if err != nil {
		a.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		return nil, fmt.Errorf("%w: %w", ErrAuth, err)
	}
	if err := a.store.Save(a.account, fresh); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuth, err)
	}
	a.logger.Info("authorized account", "account", a.account, "path", a.TokenPath())
	a.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess)
	return a.persisting(ctx, conf, fresh), nil
}

func (a *Authenticator) oauthConfig() (*oauth2.Config, error) {
	if a.secretsFile == "" {
		return nil, errors.New("no client secrets file configured")
	}
	data, err := os.ReadFile(a.secretsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}
	conf, err := google.ConfigFromJSON(data, a.scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file: %w", err)
	}
	return conf, nil
}

// authorize runs the loopback authorization code flow with PKCE.
func (a *Authenticator) authorize(ctx context.Context, conf *oauth2.Config) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("starting callback listener: %w", err)
	}

	c := *conf
	c.RedirectURL = "http://" + ln.Addr().String() + "/"

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	authURL := c.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))

	type callback struct {
		code string
		err  error
	}
	results := make(chan callback, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res callback
		switch {
		case q.Get("state") != state:
			res.err = errors.New("state mismatch in authorization callback")
		case q.Get("error") != "":
			res.err = fmt.Errorf("authorization denied: %s", q.Get("error"))
		case q.Get("code") == "":
			res.err = errors.New("authorization callback carried no code")
		default:
			res.code = q.Get("code")
		}

		if res.err != nil {
			http.Error(w, res.err.Error(), http.StatusBadRequest)
		} else {
			_, _ = io.WriteString(w, "Authorization complete. You can close this window.\n")
		}

		select {
		case results <- res:
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	fmt.Fprintf(a.prompt, "Open the following URL in your browser to authorize access to the %q account:\n\n%s\n\n", a.account, authURL)
	if a.openBrowser != nil {
		if err := a.openBrowser(authURL); err != nil {
			a.logger.Warn("could not open browser", "error", err)
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, a.authTimeout)
	defer cancel()

	var res callback
	select {
	case res = <-results:
	case <-waitCtx.Done():
		return nil, fmt.Errorf("waiting for authorization: %w", waitCtx.Err())
	}
	if res.err != nil {
		return nil, res.err
	}

	tok, err := c.Exchange(ctx, res.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}
	return tok, nil
}

// persisting wraps the config token source so tokens refreshed later in the
// run are written back to the cache.
func (a *Authenticator) persisting(ctx context.Context, conf *oauth2.Config, tok *oauth2.Token) oauth2.TokenSource {
	return &persistingTokenSource{
		base:    conf.TokenSource(ctx, tok),
		store:   a.store,
		account: a.account,
		last:    tok.AccessToken,
		logger:  a.logger,
		metrics: a.metrics,
		ctx:     ctx,
	}
}

type persistingTokenSource struct {
	base    oauth2.TokenSource
	store   *TokenStore
	account string
	logger  logging.Logger
	metrics *instrumentation.Metrics
	ctx     context.Context

	mu   sync.Mutex
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		s.metrics.RecordOAuthTokenRefresh(s.ctx, instrumentation.OAuthResultFailure)
		return nil, fmt.Errorf("%w: %w", ErrAuth, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.metrics.RecordOAuthTokenRefresh(s.ctx, instrumentation.OAuthResultSuccess)
		if err := s.store.Save(s.account, tok); err != nil {
			s.logger.Warn("failed to persist refreshed token", "account", s.account, "error", err)
		} else {
			s.last = tok.AccessToken
		}
	}
	return tok, nil
}
