package ai

import "github.com/archofall1/ai-ap/internal/models"

const DefaultEnergy = 10

// EnergyGauge caps how many image-bearing requests a session may send to the
// vision model. It is not safe for concurrent use.
type EnergyGauge struct {
	limit     int
	remaining int

	text     ChatModel
	vision   ChatModel
	fallback ChatModel
}

// Route is where one request goes. DropImages asks the caller to strip images
// from the whole history before dispatch; it is set on every non-vision route.
type Route struct {
	Primary    ChatModel
	Fallback   ChatModel
	DropImages bool
	Vision     bool
}

func NewEnergyGauge(limit int, c *Collaborators) *EnergyGauge {
	if limit <= 0 {
		limit = DefaultEnergy
	}
	g := &EnergyGauge{limit: limit, remaining: limit}
	if c != nil {
		g.text, g.vision, g.fallback = c.Text, c.Vision, c.Fallback
	}
	return g
}

// Route picks the model for content, consuming one unit for a vision request.
func (g *EnergyGauge) Route(content models.Content) Route {
	if !content.HasImage() {
		return Route{Primary: g.text, Fallback: g.fallback, DropImages: true}
	}
	if g.vision == nil || g.remaining <= 0 {
		return Route{Primary: g.text, Fallback: g.fallback, DropImages: true}
	}
	g.remaining--
	return Route{Primary: g.vision, Fallback: g.text, Vision: true}
}

func (g *EnergyGauge) Remaining() int { return g.remaining }

func (g *EnergyGauge) Limit() int { return g.limit }

func (g *EnergyGauge) Reset() { g.remaining = g.limit }
