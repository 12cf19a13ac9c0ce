package api

import (
	"time"

	"github.com/samcharles93/qtensor/internal/backend"
	"github.com/samcharles93/qtensor/pkg/quant"
)

type FormatInfo struct {
	Name       string  `json:"name"`
	BlockSize  int     `json:"block_size"`
	TypeSize   int     `json:"type_size"`
	GroupSize  int     `json:"group_size"`
	Quantized  bool    `json:"quantized"`
	Symmetric  bool    `json:"symmetric"`
	BitsPerVal float64 `json:"bits_per_value"`
}

type FormatList struct {
	Object string       `json:"object"`
	Data   []FormatInfo `json:"data"`
}

type CapabilitiesResponse struct {
	Object       string               `json:"object"`
	Capabilities backend.Capabilities `json:"capabilities"`
	Features     []string             `json:"features"`
	Backends     []backend.Kind       `json:"backends"`
	Threads      int                  `json:"threads"`
}

// CreateTensorRequest carries either Values, which are quantized, or Data,
// which must already be packed in Format. Data is base64 in JSON.
type CreateTensorRequest struct {
	Name    string    `json:"name,omitempty"`
	Format  string    `json:"format"`
	Shape   []int     `json:"shape"`
	Values  []float32 `json:"values,omitempty"`
	Data    []byte    `json:"data,omitempty"`
	Backend string    `json:"backend,omitempty"`
}

type TensorResponse struct {
	ID        string       `json:"id"`
	Object    string       `json:"object"`
	Name      string       `json:"name,omitempty"`
	Format    quant.Format `json:"format"`
	Shape     []int        `json:"shape"`
	Elements  int          `json:"elements"`
	Blocks    int          `json:"blocks"`
	Size      int          `json:"size"`
	CreatedAt int64        `json:"created_at"`
}

type ValuesResponse struct {
	ID        string       `json:"id"`
	Object    string       `json:"object"`
	Precision string       `json:"precision"`
	Backend   backend.Kind `json:"backend"`
	Values    []float32    `json:"values"`
}

type MatVecRequest struct {
	X []float32 `json:"x"`
}

type MatVecResponse struct {
	ID     string    `json:"id"`
	Object string    `json:"object"`
	Y      []float32 `json:"y"`
}

type DeleteResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

func tensorResponse(rec *tensorRecord) TensorResponse {
	t := rec.Tensor
	return TensorResponse{
		ID:        rec.ID,
		Object:    "tensor",
		Name:      rec.Name,
		Format:    t.Format(),
		Shape:     t.Shape(),
		Elements:  t.Elements(),
		Blocks:    t.Blocks(),
		Size:      t.Size(),
		CreatedAt: rec.CreatedAt.Unix(),
	}
}

func formatInfo(f quant.Format) FormatInfo {
	d := f.Descriptor()
	return FormatInfo{
		Name:       d.Name,
		BlockSize:  d.BlockSize,
		TypeSize:   d.TypeSize,
		GroupSize:  d.GroupSize,
		Quantized:  f.Quantized(),
		Symmetric:  d.Symmetric,
		BitsPerVal: float64(d.TypeSize*8) / float64(d.BlockSize),
	}
}

type tensorRecord struct {
	ID        string
	Name      string
	Tensor    *quant.Tensor
	CreatedAt time.Time
}
