package soil

import (
	"math/rand/v2"
	"slices"
)

var tips = []string{
	"Increase organic matter in your soil by adding compost or well-rotted manure.",
	"Use mulch to help retain moisture and suppress weeds in your garden.",
	"Test your soil pH regularly to ensure it's appropriate for your plants.",
	"Practice crop rotation to prevent soil nutrient depletion.",
	"Consider using cover crops to improve soil structure and prevent erosion.",
	"Avoid working wet soil as it can damage soil structure.",
	"Add lime to raise pH if your soil is too acidic.",
	"Use sulfur to lower pH if your soil is too alkaline.",
	"Ensure proper drainage to prevent waterlogged soil and root rot.",
	"Reduce tilling to preserve soil structure and beneficial organisms.",
	"Introduce beneficial microbes with compost tea or commercial products.",
	"Implement no-till or minimum-till practices to preserve soil ecology.",
	"Balance nitrogen application to avoid excessive vegetative growth.",
	"Use slow-release fertilizers to provide nutrients over time.",
	"Consider installing a drip irrigation system to optimize water usage.",
	"Plant legumes to fix nitrogen naturally in your soil.",
	"Use organic pest control methods to protect soil health and beneficial insects.",
	"Collect rainwater for irrigation to reduce chemical content in water.",
	"Add earthworms to your soil to improve aeration and decomposition.",
	"Test for soil compaction and aerate if necessary.",
	"Apply potassium-rich amendments for stronger plant cell walls and disease resistance.",
	"Balance calcium and magnesium levels for optimal plant growth.",
	"Use rock dust or kelp meal to add trace minerals to your soil.",
	"Implement erosion control methods on sloped areas of your garden.",
	"Allow leaf litter to decompose naturally where appropriate.",
	"Consider biochar as a long-term soil amendment to increase carbon sequestration.",
	"Maintain a healthy soil food web by avoiding chemicals that harm beneficial organisms.",
	"Use compost tea as a natural fertilizer and disease suppressor.",
	"Plant deep-rooted cover crops to break up compacted subsoil.",
	"Practice polyculture to improve soil biodiversity and resilience.",
}

// DefaultTipCount is how many tips the dashboard shows.
const DefaultTipCount = 3

// Tips returns a copy of every known tip.
func Tips() []string { return slices.Clone(tips) }

// RandomTip returns one tip.
func RandomTip(rng *rand.Rand) string {
	return tips[rng.IntN(len(tips))]
}

// RandomTips returns n distinct tips; n is capped at the number of tips.
func RandomTips(rng *rand.Rand, n int) []string {
	if n <= 0 {
		return []string{}
	}
	n = min(n, len(tips))
	perm := rng.Perm(len(tips))
	out := make([]string, n)
	for i := range out {
		out[i] = tips[perm[i]]
	}
	return out
}
