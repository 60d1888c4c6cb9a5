package output

import "github.com/emandor/lemme_ocr/internal/ocr"

// PaddleEncoder emits the document layout PaddleOCR pipelines write with
// save_to_json, so existing consumers of those files keep working.
type PaddleEncoder struct{}

type paddleDoc struct {
	InputPath     string        `json:"input_path"`
	Lang          string        `json:"lang"`
	ModelSettings paddleModel   `json:"model_settings"`
	RecTexts      []string      `json:"rec_texts"`
	RecScores     []float64     `json:"rec_scores"`
	RecPolys      [][4][2]int   `json:"rec_polys"`
	RecBoxes      [][4]int      `json:"rec_boxes"`
	Angles        []int         `json:"textline_orientation_angles"`
	Size          paddleImgSize `json:"image_size"`
}

type paddleModel struct {
	UseTextlineOrientation bool `json:"use_textline_orientation"`
}

type paddleImgSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (PaddleEncoder) Encode(r ocr.Result) any {
	n := len(r.Spans)
	doc := paddleDoc{
		InputPath:     r.InputPath,
		Lang:          r.Lang,
		ModelSettings: paddleModel{UseTextlineOrientation: r.UseAngleCls},
		RecTexts:      make([]string, 0, n),
		RecScores:     make([]float64, 0, n),
		RecPolys:      make([][4][2]int, 0, n),
		RecBoxes:      make([][4]int, 0, n),
		Angles:        make([]int, 0, n),
		Size:          paddleImgSize{Width: r.Width, Height: r.Height},
	}
	for _, s := range r.Spans {
		var poly [4][2]int
		for i, p := range s.Poly() {
			poly[i] = [2]int{p.X, p.Y}
		}
		doc.RecTexts = append(doc.RecTexts, s.Text)
		doc.RecScores = append(doc.RecScores, s.Score)
		doc.RecPolys = append(doc.RecPolys, poly)
		doc.RecBoxes = append(doc.RecBoxes, [4]int{s.Box.Min.X, s.Box.Min.Y, s.Box.Max.X, s.Box.Max.Y})
		angle := -1
		if r.UseAngleCls {
			angle = s.Angle
		}
		doc.Angles = append(doc.Angles, angle)
	}
	return doc
}

// SpansEncoder emits one object per span; used by the HTTP API.
type SpansEncoder struct{}

type spanDoc struct {
	Text  string       `json:"text"`
	Score float64      `json:"score"`
	Angle int          `json:"angle"`
	Poly  [4]ocr.Point `json:"poly"`
}

func (SpansEncoder) Encode(r ocr.Result) any {
	spans := make([]spanDoc, 0, len(r.Spans))
	for _, s := range r.Spans {
		spans = append(spans, spanDoc{Text: s.Text, Score: s.Score, Angle: s.Angle, Poly: s.Poly()})
	}
	return map[string]any{
		"input_path": r.InputPath,
		"lang":       r.Lang,
		"width":      r.Width,
		"height":     r.Height,
		"spans":      spans,
	}
}
