package questionbank

import "slices"

// smallTopicMergeMap maps every topic with at most SmallTopicThreshold
// questions to the nearest preceding non-small topic in numeric order, or the
// nearest following one when nothing precedes it. Topics with no possible
// target (every topic is small) are left alone.
func smallTopicMergeMap(counts map[string]int) map[string]string {
	sorted := make([]string, 0, len(counts))
	for topicID := range counts {
		sorted = append(sorted, topicID)
	}
	slices.SortFunc(sorted, compareNumericID)

	isSmall := func(topicID string) bool {
		return counts[topicID] <= SmallTopicThreshold
	}

	merge := make(map[string]string)
	for i, topicID := range sorted {
		if !isSmall(topicID) {
			continue
		}

		target := ""
		for j := i - 1; j >= 0; j-- {
			if !isSmall(sorted[j]) {
				target = sorted[j]
				break
			}
		}
		if target == "" {
			for j := i + 1; j < len(sorted); j++ {
				if !isSmall(sorted[j]) {
					target = sorted[j]
					break
				}
			}
		}
		if target != "" {
			merge[topicID] = target
		}
	}
	return merge
}
