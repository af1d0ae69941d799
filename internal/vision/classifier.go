package vision

import (
	"context"
	"time"

	"foodbridge/internal/domain"
	"foodbridge/internal/logger"
	"foodbridge/internal/netwatch"
)

// DonationSchema is the constrained response shape for classification.
var DonationSchema = &Schema{
	Type: "OBJECT",
	Properties: map[string]*Schema{
		"food_name":         {Type: "STRING", Description: "Name of the dish"},
		"category":          {Type: "STRING", Description: "Veg, Non-Veg, or Vegan", Enum: []string{"Veg", "Non-Veg", "Vegan"}},
		"quantity_estimate": {Type: "STRING", Description: "Estimate of servings"},
		"weight_kg":         {Type: "NUMBER", Description: "Estimated weight in KG"},
		"freshness_status":  {Type: "STRING", Description: "Fresh, Suspicious, or Spoiled"},
		"safety_flag":       {Type: "BOOLEAN", Description: "True if safe to donate, false if unsafe"},
		"safety_reason":     {Type: "STRING", Description: "Specific explanation for the safety flag"},
		"expiry_window":     {Type: "STRING", Description: "Safe consumption window"},
		"allergens":         {Type: "ARRAY", Items: &Schema{Type: "STRING"}, Description: "List of detected potential allergens"},
	},
	Required: []string{"food_name", "category", "quantity_estimate", "freshness_status", "safety_flag", "safety_reason", "expiry_window", "allergens"},
}

type Classifier struct {
	b      boundary
	system string
	user   string
}

func NewClassifier(gen Generator, system, user string, status netwatch.Status, timeout time.Duration, log *logger.Logger) *Classifier {
	if user == "" {
		user = "Analyze this food image according to the safety protocols."
	}
	return &Classifier{
		b:      boundary{gen: gen, net: status, timeout: timeout, log: log, name: "classify"},
		system: system,
		user:   user,
	}
}

// Classify sends the image once and decodes the verdict.
func (c *Classifier) Classify(ctx context.Context, image []byte, mimeType string) (domain.Donation, error) {
	text, err := c.b.generate(ctx, Request{
		System: c.system,
		Parts:  []Part{ImagePart(mimeType, image), TextPart(c.user)},
		Schema: DonationSchema,
	})
	if err != nil {
		return domain.Donation{}, err
	}
	d, err := DecodeDonation(text)
	if err != nil {
		return domain.Donation{}, c.b.malformed(err, text)
	}
	return d, nil
}
