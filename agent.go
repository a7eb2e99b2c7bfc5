package wsagent

import (
	"context"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/Zereker/wsagent/marshal"
	"github.com/Zereker/wsagent/meta"
)

// DefaultAPIVersion is the acceptor version used when none is set.
const DefaultAPIVersion = "1.0"

var (
	idPattern      = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
	versionPattern = regexp.MustCompile(`^[0-9a-z_.-]+$`)
)

// MetadataKind selects the frame metadata format of an agent.
type MetadataKind string

const (
	MetaText   MetadataKind = "text"
	MetaBinary MetadataKind = "binary"
	MetaFixed  MetadataKind = "fixed"
	MetaJSON   MetadataKind = "json"
)

// ParseMetadataKind parses a metadata kind. An empty string means MetaText.
func ParseMetadataKind(s string) (MetadataKind, error) {
	switch kind := MetadataKind(strings.ToLower(strings.TrimSpace(s))); kind {
	case "":
		return MetaText, nil
	case MetaText, MetaBinary, MetaFixed, MetaJSON:
		return kind, nil
	default:
		return "", errors.Errorf("unknown metadata kind: %q", s)
	}
}

// Protocol describes how an agent frames its messages.
type Protocol struct {
	// Frames is the frame type the agent supports.
	Frames FrameType
	// Metadata selects the envelope format. Ignored when Custom is set.
	Metadata MetadataKind
	// Marshal selects the payload marshaller.
	Marshal marshal.Kind

	// TextSeparator and BinarySeparator override meta.DefaultSeparator.
	TextSeparator   byte
	BinarySeparator byte

	// Version is the default version of acceptors that have none.
	Version string

	// Custom replaces the metadata selected by Metadata.
	Custom meta.FrameMetadata
}

// DefaultProtocol returns a text metadata, JSON payload protocol that
// follows the client frame type preference.
func DefaultProtocol() Protocol {
	return Protocol{
		Frames:   FromClient,
		Metadata: MetaText,
		Marshal:  marshal.KindJSON,
		Version:  DefaultAPIVersion,
	}
}

// Agent is a set of acceptors served at one websocket URL.
// It is immutable once built and shared by all of its connections.
type Agent struct {
	url      string
	protocol Protocol

	byID   map[string]*Acceptor
	byType map[reflect.Type]*Acceptor

	marshaller marshal.Marshaller
	metadata   meta.FrameMetadata

	onConnect    []func(ctx context.Context, client ClientInfo, sender Sender)
	onDisconnect []func(client ClientInfo)
}

// NewAgent returns an agent routing frames to acceptors by acceptor id.
func NewAgent(url string, protocol Protocol, acceptors ...*Acceptor) (*Agent, error) {
	if err := checkURL(url); err != nil {
		return nil, err
	}
	if len(acceptors) == 0 {
		return nil, configErrorf("agent %s has no acceptors", url)
	}
	if protocol.Version == "" {
		protocol.Version = DefaultAPIVersion
	}

	byID := make(map[string]*Acceptor, len(acceptors))
	for _, a := range acceptors {
		a, err := checkAcceptor(a, protocol.Version)
		if err != nil {
			return nil, err
		}
		if existing, ok := byID[a.ID()]; ok {
			return nil, configErrorf("API identifier %q is not unique in agent %s: %s and %s", a.ID(), url, existing, a)
		}
		byID[a.ID()] = a
	}

	m, err := marshal.For(protocol.Marshal)
	if err != nil {
		return nil, &ConfigError{msg: "agent " + url, cause: err}
	}
	md, err := selectMetadata(protocol, byID)
	if err != nil {
		return nil, err
	}

	return &Agent{
		url:        url,
		protocol:   protocol,
		byID:       byID,
		marshaller: m,
		metadata:   md,
	}, nil
}

// NewFrameAgent returns an agent routing whole frames by their type.
// Acceptors must be built with HandleFrame on a concrete frame type.
func NewFrameAgent(url string, acceptors ...*Acceptor) (*Agent, error) {
	if err := checkURL(url); err != nil {
		return nil, err
	}
	if len(acceptors) == 0 {
		return nil, configErrorf("agent %s has no acceptors", url)
	}

	byType := make(map[reflect.Type]*Acceptor, len(acceptors))
	for _, a := range acceptors {
		if !a.AcceptsFrame() {
			return nil, configErrorf("agent %s accepts frames only: %s", url, a)
		}
		if a.Type().Kind() == reflect.Interface {
			return nil, configErrorf("agent %s needs a concrete frame type: %s", url, a)
		}
		if existing, ok := byType[a.Type()]; ok {
			return nil, configErrorf("multiple acceptors match %s in agent %s: %s and %s", a.Type(), url, existing, a)
		}
		byType[a.Type()] = a
	}

	return &Agent{
		url:      url,
		protocol: Protocol{Frames: AllowBoth},
		byType:   byType,
	}, nil
}

func checkURL(url string) error {
	if !strings.HasPrefix(url, "/") {
		return configErrorf("websocket URL must start with '/': %s", url)
	}
	if strings.ContainsAny(url, "{}*") {
		return configErrorf("websocket URL can't contain variables: %s", url)
	}
	return nil
}

// checkAcceptor validates a and returns the copy the agent keeps, so an
// acceptor shared between agents picks up each agent's default version.
func checkAcceptor(a *Acceptor, defaultVersion string) (*Acceptor, error) {
	id := a.ID()
	if id == "" {
		return nil, configErrorf("API id can't be empty: %s", a)
	}
	if !idPattern.MatchString(id) {
		return nil, configErrorf("API id contains illegal chars: %s", id)
	}
	if len(id) > meta.MaxIDSize {
		return nil, configErrorf("API id can't be longer than %d chars: %s", meta.MaxIDSize, id)
	}
	cp := *a
	if cp.version == "" {
		cp.version = defaultVersion
	}
	if !versionPattern.MatchString(cp.version) {
		return nil, configErrorf("API version contains illegal chars: %s", cp.version)
	}
	return &cp, nil
}

func selectMetadata(protocol Protocol, byID map[string]*Acceptor) (meta.FrameMetadata, error) {
	if protocol.Custom != nil {
		return protocol.Custom, nil
	}

	minLen, maxLen := meta.MaxIDSize, 0
	for id := range byID {
		minLen = min(minLen, len(id))
		maxLen = max(maxLen, len(id))
	}

	switch protocol.Metadata {
	case MetaText, "":
		return meta.NewTextSeparator(separatorOr(protocol.TextSeparator), maxLen), nil
	case MetaBinary:
		return meta.NewBinarySeparator(separatorOr(protocol.BinarySeparator), maxLen), nil
	case MetaFixed:
		if minLen != maxLen {
			return nil, configErrorf("fixed size metadata requires all API ids to have the same length: %v", sortedIDs(byID))
		}
		return meta.NewBinaryFixedSize(maxLen), nil
	case MetaJSON:
		return meta.JSON{}, nil
	default:
		return nil, configErrorf("unknown metadata kind: %s", protocol.Metadata)
	}
}

func separatorOr(sep byte) byte {
	if sep == 0 {
		return meta.DefaultSeparator
	}
	return sep
}

func sortedIDs(byID map[string]*Acceptor) []string {
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// OnConnect registers fn to run once a connection is established.
// On agents built with NewAgent the sender also implements MessageSender.
func (a *Agent) OnConnect(fn func(ctx context.Context, client ClientInfo, sender Sender)) *Agent {
	a.onConnect = append(a.onConnect, fn)
	return a
}

// OnDisconnect registers fn to run after a connection is closed.
func (a *Agent) OnDisconnect(fn func(client ClientInfo)) *Agent {
	a.onDisconnect = append(a.onDisconnect, fn)
	return a
}

func (a *Agent) URL() string                  { return a.url }
func (a *Agent) Protocol() Protocol           { return a.protocol }
func (a *Agent) Metadata() meta.FrameMetadata { return a.metadata }
func (a *Agent) AcceptsFrames() bool          { return a.byType != nil }

// Acceptor returns the acceptor registered under id.
func (a *Agent) Acceptor(id string) (*Acceptor, bool) {
	acceptor, ok := a.byID[id]
	return acceptor, ok
}

// Acceptors returns the acceptors of the agent, ordered by id or type.
func (a *Agent) Acceptors() []*Acceptor {
	result := make([]*Acceptor, 0, len(a.byID)+len(a.byType))
	for _, id := range sortedIDs(a.byID) {
		result = append(result, a.byID[id])
	}
	byType := make([]*Acceptor, 0, len(a.byType))
	for _, acceptor := range a.byType {
		byType = append(byType, acceptor)
	}
	sort.Slice(byType, func(i, j int) bool {
		return byType[i].Type().String() < byType[j].Type().String()
	})
	return append(result, byType...)
}

// Endpoint returns a fresh endpoint for one connection.
func (a *Agent) Endpoint() AgentEndpoint {
	if a.AcceptsFrames() {
		return NewClassBasedEndpoint(a, a.byType)
	}
	return NewConverterEndpoint(a, NewFrameConverter(a.marshaller, a.metadata, a.byID, a.protocol.Frames))
}

func (a *Agent) connected(ctx context.Context, client ClientInfo, sender Sender) {
	for _, fn := range a.onConnect {
		fn(ctx, client, sender)
	}
}

func (a *Agent) disconnected(client ClientInfo) {
	for _, fn := range a.onDisconnect {
		fn(client)
	}
}

func (a *Agent) String() string {
	return "Agent[" + a.url + "]"
}
