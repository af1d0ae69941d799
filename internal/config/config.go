package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"foodbridge/internal/domain"
)

// Config models foodbridge.yml.
type Config struct {
	Service struct {
		Name     string `yaml:"name"`
		Timezone string `yaml:"timezone"`
	} `yaml:"service"`
	AI           AIConfig            `yaml:"ai"`
	Prompts      PromptsConfig       `yaml:"prompts"`
	Intake       IntakeConfig        `yaml:"intake"`
	Logistics    LogisticsConfig     `yaml:"logistics"`
	Matching     MatchingConfig      `yaml:"matching"`
	Safety       SafetyConfig        `yaml:"safety"`
	Delivery     DeliveryConfig      `yaml:"delivery"`
	Verification VerificationConfig  `yaml:"verification"`
	Rewards      RewardsConfig       `yaml:"rewards"`
	Shifts       ShiftsConfig        `yaml:"shifts"`
	NGOs         []domain.NgoRequest `yaml:"ngos"`
	RBAC         struct {
		Roles map[string]RBACRole `yaml:"roles"`
	} `yaml:"rbac"`
	Archive      ArchiveConfig      `yaml:"archive"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Webhooks     []WebhookConfig    `yaml:"webhooks"`
}

type AIConfig struct {
	Provider       string `yaml:"provider"`
	Model          string `yaml:"model"`
	Endpoint       string `yaml:"endpoint"`
	APIKeyEnv      string `yaml:"api_key_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type PromptsConfig struct {
	ClassifySystem string `yaml:"classify_system"`
	ClassifyUser   string `yaml:"classify_user"`
	MatchSystem    string `yaml:"match_system"`
}

type IntakeConfig struct {
	MaxDimension int `yaml:"max_dimension"`
	JPEGQuality  int `yaml:"jpeg_quality"`
}

type Hotspot struct {
	Name string  `yaml:"name" json:"name"`
	Lat  float64 `yaml:"lat" json:"lat"`
	Lng  float64 `yaml:"lng" json:"lng"`
}

type LogisticsConfig struct {
	MinWeightKg        float64   `yaml:"min_weight_kg"`
	MissingWeightRoute string    `yaml:"missing_weight_route"`
	Hotspots           []Hotspot `yaml:"hotspots"`
}

type MatchingConfig struct {
	Scorer               string  `yaml:"scorer"`
	EscapeHatchBelow     int     `yaml:"escape_hatch_below"`
	StarvationFraction   float64 `yaml:"starvation_fraction"`
	ServingsPerKg        float64 `yaml:"servings_per_kg"`
	FreeDistanceKm       float64 `yaml:"free_distance_km"`
	DistancePenaltyPerKm float64 `yaml:"distance_penalty_per_km"`
	MaxDistancePenalty   int     `yaml:"max_distance_penalty"`
}

type SafetyConfig struct {
	MaxPrepHours      float64 `yaml:"max_prep_hours"`
	MaxShelfLifeHours int     `yaml:"max_shelf_life_hours"`
}

type DeliveryConfig struct {
	DurationSeconds         int       `yaml:"duration_seconds"`
	TickMillis              int       `yaml:"tick_millis"`
	StartDelayMillis        int       `yaml:"start_delay_millis"`
	VerificationDelayMillis int       `yaml:"verification_delay_millis"`
	ETAMinutes              int       `yaml:"eta_minutes"`
	Start                   []float64 `yaml:"start"`
	End                     []float64 `yaml:"end"`
}

type DiversionChannel struct {
	Label      string   `yaml:"label" json:"label"`
	Facilities []string `yaml:"facilities" json:"facilities"`
}

type VerificationConfig struct {
	Biogas  DiversionChannel `yaml:"biogas"`
	Compost DiversionChannel `yaml:"compost"`
}

type Tier struct {
	Name      string `yaml:"name" json:"name"`
	MinPoints int    `yaml:"min_points" json:"min_points"`
}

type RewardsConfig struct {
	AcceptPoints int    `yaml:"accept_points"`
	Tiers        []Tier `yaml:"tiers"`
	Ultimate     Tier   `yaml:"ultimate"`
}

type ShiftsConfig struct {
	HourlyRate        int    `yaml:"hourly_rate"`
	Currency          string `yaml:"currency"`
	CertificateMonths int    `yaml:"certificate_months"`
}

type RBACRole struct {
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
	Region  string `yaml:"region"`
	Prefix  string `yaml:"prefix"`
}

type ConnectivityConfig struct {
	ProbeAddr       string `yaml:"probe_addr"`
	IntervalSeconds int    `yaml:"interval_seconds"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Enabled        *bool    `yaml:"enabled"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

const (
	RouteNGOMatching = "ngo_matching"
	RouteDirect      = "direct"

	ScorerAI    = "ai"
	ScorerRules = "rules"
)

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with fb config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOrDefault falls back to the built-in defaults when no file exists.
func LoadOrDefault(workspace string) (*Config, error) {
	cfg, err := LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return Default(), nil
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.AI.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("config.ai.provider must be gemini or openai")
	}
	if c.AI.Model == "" {
		return fmt.Errorf("config.ai.model is required")
	}
	if c.AI.TimeoutSeconds <= 0 {
		return fmt.Errorf("config.ai.timeout_seconds must be positive")
	}
	if strings.TrimSpace(c.Prompts.ClassifySystem) == "" || strings.TrimSpace(c.Prompts.MatchSystem) == "" {
		return fmt.Errorf("config.prompts.classify_system and match_system are required")
	}
	if c.Intake.MaxDimension <= 0 {
		return fmt.Errorf("config.intake.max_dimension must be positive")
	}
	if c.Intake.JPEGQuality < 1 || c.Intake.JPEGQuality > 100 {
		return fmt.Errorf("config.intake.jpeg_quality must be within 1..100")
	}
	if c.Logistics.MinWeightKg <= 0 {
		return fmt.Errorf("config.logistics.min_weight_kg must be positive")
	}
	switch c.Logistics.MissingWeightRoute {
	case RouteNGOMatching, RouteDirect:
	default:
		return fmt.Errorf("config.logistics.missing_weight_route must be %s or %s", RouteNGOMatching, RouteDirect)
	}
	switch c.Matching.Scorer {
	case ScorerAI, ScorerRules:
	default:
		return fmt.Errorf("config.matching.scorer must be %s or %s", ScorerAI, ScorerRules)
	}
	if c.Matching.StarvationFraction < 0 || c.Matching.StarvationFraction >= 1 {
		return fmt.Errorf("config.matching.starvation_fraction must be within [0,1)")
	}
	if c.Matching.DistancePenaltyPerKm < 0 || c.Matching.MaxDistancePenalty < 0 {
		return fmt.Errorf("config.matching distance penalties must not be negative")
	}
	if c.Safety.MaxPrepHours <= 0 {
		return fmt.Errorf("config.safety.max_prep_hours must be positive")
	}
	if c.Safety.MaxShelfLifeHours <= 0 {
		return fmt.Errorf("config.safety.max_shelf_life_hours must be positive")
	}
	if c.Delivery.DurationSeconds <= 0 || c.Delivery.TickMillis <= 0 {
		return fmt.Errorf("config.delivery.duration_seconds and tick_millis must be positive")
	}
	if len(c.Delivery.Start) != 2 || len(c.Delivery.End) != 2 {
		return fmt.Errorf("config.delivery.start and end must be [lat, lng]")
	}
	if c.Delivery.ETAMinutes <= 0 {
		return fmt.Errorf("config.delivery.eta_minutes must be positive")
	}
	if len(c.Verification.Biogas.Facilities) == 0 || len(c.Verification.Compost.Facilities) == 0 {
		return fmt.Errorf("config.verification diversion channels need at least one facility")
	}
	last := 0
	for _, t := range c.Rewards.Tiers {
		if t.Name == "" {
			return fmt.Errorf("config.rewards.tiers contains empty name")
		}
		if t.MinPoints <= last {
			return fmt.Errorf("config.rewards.tiers must be strictly increasing (%s)", t.Name)
		}
		last = t.MinPoints
	}
	if c.Rewards.Ultimate.Name != "" && c.Rewards.Ultimate.MinPoints <= last {
		return fmt.Errorf("config.rewards.ultimate must exceed the last tier")
	}
	if c.Shifts.HourlyRate <= 0 {
		return fmt.Errorf("config.shifts.hourly_rate must be positive")
	}
	if c.Shifts.CertificateMonths <= 0 {
		return fmt.Errorf("config.shifts.certificate_months must be positive")
	}
	seen := map[string]bool{}
	for _, n := range c.NGOs {
		if n.ID == "" || n.OrganizationName == "" {
			return fmt.Errorf("config.ngos entries need id and organization_name")
		}
		if seen[n.ID] {
			return fmt.Errorf("config.ngos has duplicate id %s", n.ID)
		}
		seen[n.ID] = true
		switch n.RequiredDiet {
		case domain.DietVeg, domain.DietNonVeg, domain.DietVegan, domain.DietAny:
		default:
			return fmt.Errorf("ngo %s has invalid required_diet %q", n.ID, n.RequiredDiet)
		}
		if n.RequiredQuantity < 0 || n.DistanceKm < 0 {
			return fmt.Errorf("ngo %s has negative quantity or distance", n.ID)
		}
	}
	for roleID, role := range c.RBAC.Roles {
		if _, err := domain.ParseRole(roleID); err != nil {
			return fmt.Errorf("config.rbac.roles: %w", err)
		}
		for _, perm := range role.Permissions {
			if perm == "" {
				return fmt.Errorf("role %s has empty permission id", roleID)
			}
		}
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("config.archive.bucket is required when archive is enabled")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// NGO looks up a catalog entry by id.
func (c *Config) NGO(id string) (domain.NgoRequest, bool) {
	for _, n := range c.NGOs {
		if n.ID == id {
			return n, true
		}
	}
	return domain.NgoRequest{}, false
}

// APIKey resolves the AI credential from the environment.
func (c *Config) APIKey() string {
	if c.AI.APIKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.AI.APIKeyEnv))
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "foodbridge.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing keys keep
// their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	cfg.NGOs = nil
	cfg.Logistics.Hotspots = nil
	cfg.Rewards.Tiers = nil
	cfg.RBAC.Roles = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	def := Default()
	if cfg.NGOs == nil {
		cfg.NGOs = def.NGOs
	}
	if cfg.Logistics.Hotspots == nil {
		cfg.Logistics.Hotspots = def.Logistics.Hotspots
	}
	if cfg.Rewards.Tiers == nil {
		cfg.Rewards.Tiers = def.Rewards.Tiers
	}
	if cfg.RBAC.Roles == nil {
		cfg.RBAC.Roles = def.RBAC.Roles
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `service:
  name: foodbridge
  timezone: Local

ai:
  provider: gemini
  model: gemini-2.5-flash
  endpoint: https://generativelanguage.googleapis.com/v1beta
  api_key_env: FOODBRIDGE_AI_API_KEY
  timeout_seconds: 30

prompts:
  classify_system: |
    You are a food rescue validator for a zero hunger donation platform.
    For the photographed food:
    1. Identify the main dish.
    2. Estimate how many people it feeds (for example "Feeds 4-5 people").
    3. Estimate the weight in kilograms as a number.
    4. Categorize it as "Veg", "Non-Veg" or "Vegan".
    5. Inspect freshness cues (mold, discoloration, dryness, separation, texture) and flag spoiled or unsafe food.
    6. Give a specific reason for the safety decision.
    7. Estimate a safe consumption window.
    8. List likely allergens (nuts, dairy, gluten, soy, shellfish, eggs); use an empty list when none apply.
    Return only JSON.
  classify_user: Analyze this food image according to the safety protocols.
  match_system: |
    You are the logistics matching engine of a food donation platform. Always look for a way to approve donations for hungry people.
    Matching rules:
    1. Diet compatibility: ignore mismatches; assume the NGO has a partner who can take the food. Score high.
    2. Quantity: accept every quantity; even small amounts help one person. Score high.
    3. Distance: ignore distance penalties; someone will travel for food.
    Return strict JSON only:
    {"match_score": <integer 85-100>, "reason": "<enthusiastic explanation>", "recommended_action": "Approve"}

intake:
  max_dimension: 800
  jpeg_quality: 60

logistics:
  min_weight_kg: 5
  missing_weight_route: ngo_matching
  hotspots:
    - {name: "Hotspot A", lat: 12.973, lng: 77.596}
    - {name: "Hotspot B", lat: 12.970, lng: 77.593}
    - {name: "Hotspot C", lat: 12.971, lng: 77.598}

matching:
  scorer: ai
  escape_hatch_below: 50
  starvation_fraction: 0.25
  servings_per_kg: 4
  free_distance_km: 2
  distance_penalty_per_km: 2
  max_distance_penalty: 30

safety:
  max_prep_hours: 4
  max_shelf_life_hours: 24

delivery:
  duration_seconds: 20
  tick_millis: 250
  start_delay_millis: 1000
  verification_delay_millis: 1000
  eta_minutes: 15
  start: [12.9716, 77.5946]
  end: [12.9352, 77.6245]

verification:
  biogas:
    label: Biogas Plant
    facilities: ["Green Energy Corp (5km)", "City Biogas Unit 3 (8km)"]
  compost:
    label: Community Compost
    facilities: ["City Park Compost Pit (2km)", "Urban Garden Collective (4km)"]

rewards:
  accept_points: 50
  tiers:
    - {name: BRONZE, min_points: 100}
    - {name: SILVER, min_points: 500}
    - {name: GOLD, min_points: 1000}
    - {name: PLATINUM, min_points: 5000}
  ultimate: {name: ULTIMATE, min_points: 10000}

shifts:
  hourly_rate: 150
  currency: INR
  certificate_months: 6

ngos:
  - {id: "1", organization_name: City Harvest Shelter, required_diet: Any, required_quantity: 1, distance_km: 1.5, contact_person: Sarah Jenkins, phone: "+91 98765 10001"}
  - {id: "2", organization_name: Community Soup Kitchen, required_diet: Any, required_quantity: 5, distance_km: 1.2, contact_person: David Ross, phone: "+91 98765 10002"}
  - {id: "3", organization_name: Youth Center Food Bank, required_diet: Vegan, required_quantity: 10, distance_km: 12.0, contact_person: Priya Mehta, phone: "+91 98765 10003"}
  - {id: "4", organization_name: Shanti Orphanage, required_diet: Veg, required_quantity: 50, distance_km: 5.0, contact_person: Sister Mary, phone: "+91 98765 10004"}

rbac:
  roles:
    DONOR:
      description: Shares surplus food
      permissions: [donation.create, donation.read, rewards.read, profile.read]
    NGO:
      description: Receives and verifies deliveries
      permissions: [donation.read, verification.decide, attendance.write, attendance.read, certificate.read, profile.read]
    VOLUNTEER:
      description: Works shifts for the platform
      permissions: [attendance.write, attendance.read, certificate.read, profile.read]
    ADMIN:
      description: Platform oversight
      permissions: [donation.create, donation.read, verification.decide, rewards.read, rewards.write, attendance.read, profile.read, profile.write, admin.read, events.read]

archive:
  enabled: false
  bucket: ""
  region: ""
  prefix: donations/

connectivity:
  probe_addr: generativelanguage.googleapis.com:443
  interval_seconds: 15
  timeout_seconds: 3

webhooks: []
`
