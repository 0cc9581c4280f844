package interviewer

import (
	"fmt"
	"io"
	"strings"

	"github.com/harunnryd/interviewer/pkg/configutil"
	"github.com/harunnryd/interviewer/pkg/interview"
	"github.com/harunnryd/interviewer/pkg/providers/mock"
	"github.com/harunnryd/interviewer/pkg/transports"
	transportmock "github.com/harunnryd/interviewer/pkg/transports/mock"
	"github.com/harunnryd/interviewer/pkg/transports/ws"
)

// SpeechProvider speaks interview lines and reports its own speech activity.
type SpeechProvider interface {
	interview.Speaker
	Name() string
	AddListener(l interview.SpeechListener)
	// Interrupt cuts an interruptible line short when the participant barges in.
	Interrupt() bool
}

type SpeechFactory func(cfg Config) (SpeechProvider, error)
type TransportFactory func(cfg Config) (transports.Transport, error)

type ProviderRegistry struct {
	speech     map[string]SpeechFactory
	transports map[string]TransportFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		speech:     make(map[string]SpeechFactory),
		transports: make(map[string]TransportFactory),
	}
}

// DefaultProviders registers the built-in providers. The mock speaker writes to out.
func DefaultProviders(out io.Writer) *ProviderRegistry {
	r := NewProviderRegistry()
	r.RegisterSpeech("mock", func(cfg Config) (SpeechProvider, error) {
		settings := cfg.Speech.Settings
		if err := configutil.ValidateSettings(settings, configutil.Schema{
			Optional: []string{"words_per_minute", "prefix"},
		}); err != nil {
			return nil, fmt.Errorf("speech.settings: %w", err)
		}
		var sc mock.SpeakerConfig
		if err := configutil.DecodeSettings(settings, &sc); err != nil {
			return nil, err
		}
		return mock.NewSpeaker(sc, out), nil
	})
	r.RegisterTransport("ws", func(cfg Config) (transports.Transport, error) {
		settings := cfg.Transport.Settings
		if err := configutil.ValidateSettings(settings, configutil.Schema{
			Optional: []string{"server_addr", "events_path", "write_timeout", "allow_any_origin", "allowed_origins"},
		}); err != nil {
			return nil, fmt.Errorf("transport.settings: %w", err)
		}
		var wc ws.Config
		if err := configutil.DecodeSettings(settings, &wc); err != nil {
			return nil, err
		}
		return ws.New(wc), nil
	})
	r.RegisterTransport("mock", func(Config) (transports.Transport, error) {
		return transportmock.New(), nil
	})
	return r
}

func (r *ProviderRegistry) RegisterSpeech(name string, factory SpeechFactory) {
	r.speech[providerKey(name)] = factory
}

func (r *ProviderRegistry) RegisterTransport(name string, factory TransportFactory) {
	r.transports[providerKey(name)] = factory
}

func (r *ProviderRegistry) BuildSpeech(provider string, cfg Config) (SpeechProvider, error) {
	fn := r.speech[providerKey(provider)]
	if fn == nil {
		return nil, fmt.Errorf("speech provider not registered: %s", provider)
	}
	return fn(cfg)
}

func (r *ProviderRegistry) BuildTransport(provider string, cfg Config) (transports.Transport, error) {
	fn := r.transports[providerKey(provider)]
	if fn == nil {
		return nil, fmt.Errorf("transport provider not registered: %s", provider)
	}
	return fn(cfg)
}

func providerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
