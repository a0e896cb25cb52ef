package controlplane

import "context"

// RecordOptions carries optional parameters for StartRecording.
type RecordOptions struct {
	// Beep plays a tone to the bridge when recording starts.
	Beep bool
	// MaxSeconds limits the recording duration. Zero means unlimited.
	MaxSeconds int
	// IfExists controls name collisions on the storage target:
	// "fail" (default), "overwrite", or "append".
	IfExists string
}

// Client abstracts the telephony control plane command surface.
// Implementations: ariclient.Client (HTTP+WebSocket), fakes in tests.
//
// Commands are asynchronous on the control plane side: a nil error means the
// command was accepted, not that the requested outcome happened. Callers
// advance on the corresponding event, never on command return. All methods
// are safe for concurrent use.
type Client interface {
	// CreateChannel allocates a channel toward endpoint without dialing it.
	// The returned ChannelID correlates all later events for the leg.
	CreateChannel(ctx context.Context, endpoint string) (ChannelID, error)

	// Dial starts outbound setup on a previously created channel.
	Dial(ctx context.Context, ch ChannelID) error

	// Hangup releases a channel regardless of its current state.
	// Hanging up an already-gone channel is not an error.
	Hangup(ctx context.Context, ch ChannelID) error

	// CreateBridge allocates an empty bridge of the given kind.
	CreateBridge(ctx context.Context, kind BridgeKind) (BridgeID, error)

	// AddChannelToBridge joins a channel's media into the bridge mix.
	AddChannelToBridge(ctx context.Context, br BridgeID, ch ChannelID) error

	// RemoveChannelFromBridge detaches a channel from the bridge mix.
	RemoveChannelFromBridge(ctx context.Context, br BridgeID, ch ChannelID) error

	// StartHoldMusic plays the named music-on-hold class to bridge members.
	StartHoldMusic(ctx context.Context, br BridgeID, class string) error

	// StopHoldMusic stops music-on-hold previously started on the bridge.
	StopHoldMusic(ctx context.Context, br BridgeID) error

	// DestroyBridge tears the bridge down, ejecting any remaining members.
	DestroyBridge(ctx context.Context, br BridgeID) error

	// PlayMedia starts playback of mediaRef (e.g. "sound:welcome") on a
	// channel and returns the playback instance used to correlate
	// PlaybackStateEvents.
	PlayMedia(ctx context.Context, ch ChannelID, mediaRef string) (PlaybackID, error)

	// StartRecording records the bridge mix in the given format. It returns
	// an error if the control plane cannot start the recording, for example
	// when the storage target is unwritable.
	StartRecording(ctx context.Context, br BridgeID, format string, opts RecordOptions) (RecordingID, error)
}
