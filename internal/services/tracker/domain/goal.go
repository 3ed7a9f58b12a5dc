package domain

// Metric selects which sale attribute a goal accumulates.
type Metric string

const (
	// MetricRevenue accumulates the sale's total price.
	MetricRevenue Metric = "revenue"
	// MetricQuantity accumulates the sale's unit quantity.
	MetricQuantity Metric = "quantity"
)

// Valid reports whether the metric is a known accumulation source.
func (m Metric) Valid() bool {
	return m == MetricRevenue || m == MetricQuantity
}

// Criteria is a set of optional whitelist filters narrowing which sales
// count toward a goal. An empty or absent list imposes no constraint on
// that dimension. Field names follow the external goal document schema.
type Criteria struct {
	Products         []string `json:"products,omitempty"`
	Brands           []string `json:"brands,omitempty"`
	Categories       []string `json:"categories,omitempty"`
	PharmacyIDs      []string `json:"pharmacyIds,omitempty"`
	Zones            []string `json:"zones,omitempty"`
	ClientCategories []string `json:"clientCategories,omitempty"`
}

// Goal is a target definition against which sales accumulate. It is
// read-only from the tracker's perspective: metric, target, reward, and
// criteria never change for the lifetime of a goal as observed here.
type Goal struct {
	ID           string
	IsActive     bool
	Metric       Metric
	TargetValue  float64
	RewardPoints int64
	Criteria     *Criteria
}

// IncrementValue returns the sale contribution for this goal's metric.
func (g Goal) IncrementValue(sale Sale) float64 {
	if g.Metric == MetricRevenue {
		return sale.TotalPrice
	}
	return sale.Quantity
}

// Validate checks the goal definition fields the accumulator depends on.
func (g Goal) Validate() error {
	if !g.Metric.Valid() {
		return ErrGoalInvalidMetric
	}
	if g.TargetValue <= 0 {
		return ErrGoalInvalidTarget
	}
	return nil
}
