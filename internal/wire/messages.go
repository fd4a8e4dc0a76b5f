// Package wire implements the coordinator/daemon message protocol: a
// session-oriented, length-framed exchange over TCP. Every frame is a 9-byte
// header (little-endian payload size plus a kind byte) followed by a
// msgpack-encoded payload.
package wire

// Kind discriminates the message carried by a frame.
type Kind byte

const (
	// KindBuildRequest asks the daemon to execute a recipe.
	KindBuildRequest Kind = iota
	// KindBuildResult reports the outcome of a build request.
	KindBuildResult
	// KindFetchRequest asks for the bytes of a produced file.
	KindFetchRequest
	// KindFetchResponse carries the file content.
	KindFetchResponse
	// KindStatRequest asks for file metadata on the daemon's clock.
	KindStatRequest
	// KindStatResponse carries the metadata.
	KindStatResponse
	// KindError reports a request failure.
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindBuildRequest:
		return "BUILD_REQUEST"
	case KindBuildResult:
		return "BUILD_RESULT"
	case KindFetchRequest:
		return "FETCH_REQUEST"
	case KindFetchResponse:
		return "FETCH_RESPONSE"
	case KindStatRequest:
		return "STAT_REQUEST"
	case KindStatResponse:
		return "STAT_RESPONSE"
	case KindError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Error codes carried by ErrorMessage.
const (
	CodeNotFound = "not_found"
	CodeBuild    = "build"
	CodeProtocol = "protocol"
)

// BuildRequest asks a daemon to execute a recipe inside workingDir, one line
// at a time, stopping at the first nonzero exit.
type BuildRequest struct {
	TargetName  string   `msgpack:"target_name"`
	RecipeLines []string `msgpack:"recipe_lines"`
	WorkingDir  string   `msgpack:"working_dir"`
}

// BuildResult carries the exit code and captured output of a build request.
// Coalesced requests for the same (working_dir, target) receive identical
// results.
type BuildResult struct {
	ExitCode int    `msgpack:"exit_code"`
	Stdout   string `msgpack:"stdout"`
	Stderr   string `msgpack:"stderr"`
}

// FetchRequest asks for the current content of a file. A relative path is
// resolved against workingDir.
type FetchRequest struct {
	Path       string `msgpack:"path"`
	WorkingDir string `msgpack:"working_dir"`
}

// FetchResponse streams a file's bytes back. Checksum is the xxhash64 of
// Data so the coordinator can verify the transfer.
type FetchResponse struct {
	Size     int64  `msgpack:"size"`
	Checksum uint64 `msgpack:"checksum"`
	Data     []byte `msgpack:"data"`
}

// StatRequest asks for file metadata from the daemon, using its clock. A
// relative path is resolved against workingDir.
type StatRequest struct {
	Path       string `msgpack:"path"`
	WorkingDir string `msgpack:"working_dir"`
}

// StatResponse reports whether the path exists and its timestamps.
type StatResponse struct {
	Exists    bool  `msgpack:"exists"`
	MtimeUnix int64 `msgpack:"mtime_unix_nano"`
	Size      int64 `msgpack:"size"`
}

// ErrorMessage reports a failed request. Code is one of the Code* constants.
type ErrorMessage struct {
	Code    string `msgpack:"code"`
	Message string `msgpack:"message"`
}
