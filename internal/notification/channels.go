package notification

import "context"

// Channel is a delivery channel resolved at intake.
type Channel string

const (
	ChannelInApp  Channel = "inapp"
	ChannelEmail  Channel = "email"
	ChannelPush   Channel = "push"
	ChannelDigest Channel = "digest"
)

// MetadataKeyUserEmail in request metadata promotes the email channel even
// when the recipient's stored preferences don't list it.
const MetadataKeyUserEmail = "userEmail"

// Preferences are the recipient's stored delivery preferences.
type Preferences struct {
	Channels []Channel
	// DigestCadence is empty for immediate delivery, otherwise a cadence
	// label ("hourly", "daily") that routes non-urgent notifications into
	// the digest accumulator.
	DigestCadence string
}

// PreferenceSource resolves a recipient's delivery preferences.
type PreferenceSource interface {
	Preferences(ctx context.Context, recipientID string) (Preferences, error)
}

// StaticPreferences is a PreferenceSource returning the same preferences
// for every recipient; the zero value means in-app only, no digest.
type StaticPreferences struct {
	Prefs Preferences
}

// Preferences implements PreferenceSource.
func (s StaticPreferences) Preferences(context.Context, string) (Preferences, error) {
	p := s.Prefs
	if len(p.Channels) == 0 {
		p.Channels = []Channel{ChannelInApp}
	}
	return p, nil
}

// ResolveChannels classifies the delivery channels for a request:
// stored preferences first, then type and metadata hints. The in-app
// channel is always present since the notification is persisted regardless.
func ResolveChannels(prefs Preferences, req Request) []Channel {
	set := map[Channel]struct{}{ChannelInApp: {}}
	for _, ch := range prefs.Channels {
		set[ch] = struct{}{}
	}
	if _, ok := req.Metadata[MetadataKeyUserEmail]; ok {
		set[ChannelEmail] = struct{}{}
	}
	// Account-security notifications always reach email when an address
	// hint is not required to find one.
	if req.Type == TypePasswordReset {
		set[ChannelEmail] = struct{}{}
	}

	// Stable order: inapp, email, push.
	var out []Channel
	for _, ch := range []Channel{ChannelInApp, ChannelEmail, ChannelPush} {
		if _, ok := set[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}
