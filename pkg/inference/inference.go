// Package inference provides clients for remote VLA inference endpoints.
//
// All clients implement the controller-side vla.InferenceClient contract:
// connect, predict (observation in, action chunk out), close, and an
// always-present metrics snapshot. Two transports are provided, HTTP/JSON
// for stateless cloud endpoints and a persistent websocket for low-latency
// edge daemons, plus a scripted Mock and a Simulator for development
// without a model server.
//
// Example:
//
//	client, _ := inference.NewHTTPClient(
//	    inference.WithBaseURL("https://vla.example.com"),
//	    inference.WithModel("pi0"),
//	)
//	defer client.Close()
//
//	chunk, err := client.Predict(ctx, obs)
package inference

import (
	"github.com/fleetmind/go-vla/pkg/vla"
)

// ModelInfo is endpoint metadata reported by discovery endpoints.
type ModelInfo struct {
	ModelName            string   `json:"model_name"`
	ModelVersion         string   `json:"model_version"`
	BaseModel            string   `json:"base_model"`
	ActionDim            int      `json:"action_dim"`
	ChunkSize            int      `json:"chunk_size"`
	ImageWidth           int      `json:"image_width"`
	ImageHeight          int      `json:"image_height"`
	SupportedEmbodiments []string `json:"supported_embodiments"`
}

// predictRequest is the wire form of one inference request.
type predictRequest struct {
	Observation vla.Observation `json:"observation"`
	Model       string          `json:"model,omitempty"`
	Sequence    int             `json:"sequence,omitempty"`
}

// predictResponse is the wire form of one inference response.
type predictResponse struct {
	Chunk    *vla.ActionChunk `json:"chunk"`
	Sequence int              `json:"sequence,omitempty"`
	Error    string           `json:"error,omitempty"`
}
