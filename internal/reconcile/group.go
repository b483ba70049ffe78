package reconcile

import (
	"sort"

	"github.com/kevinmichaelchen/star-tidy/internal/models"
)

// CategoryGroup is the set of repositories classified into one category.
type CategoryGroup struct {
	Name  string
	Repos []models.Repository
}

// Group buckets repositories by their classified category. Groups and the
// repositories inside them follow the order of allRepos, so the output is
// stable for a given input. Classification entries with no matching
// repository are dropped, as are repositories with no classification.
func Group(classification map[string]models.ClassificationResult, allRepos []models.Repository) []CategoryGroup {
	index := map[string]int{}
	var groups []CategoryGroup
	seen := map[string]bool{}

	for _, repo := range allRepos {
		result, ok := classification[repo.FullName]
		if !ok || seen[repo.FullName] {
			continue
		}
		seen[repo.FullName] = true

		i, ok := index[result.Category]
		if !ok {
			i = len(groups)
			index[result.Category] = i
			groups = append(groups, CategoryGroup{Name: result.Category})
		}
		groups[i].Repos = append(groups[i].Repos, repo)
	}
	return groups
}

// Stats summarizes a group for descriptions and enhancement prompts.
type Stats struct {
	Count        int
	TopLanguages []string
	TotalStars   int
	TopTopics    []string
}

// GroupStats counts languages, stars and topics across repos. Rankings are
// by count, ties broken by first appearance.
func GroupStats(repos []models.Repository) Stats {
	var languages, topics []string
	langCount, topicCount := map[string]int{}, map[string]int{}
	total := 0

	for _, repo := range repos {
		if repo.Language != nil && *repo.Language != "" {
			if langCount[*repo.Language] == 0 {
				languages = append(languages, *repo.Language)
			}
			langCount[*repo.Language]++
		}
		for _, topic := range repo.Topics {
			if topicCount[topic] == 0 {
				topics = append(topics, topic)
			}
			topicCount[topic]++
		}
		total += repo.StargazersCount
	}

	return Stats{
		Count:        len(repos),
		TopLanguages: top(languages, langCount, 3),
		TotalStars:   total,
		TopTopics:    top(topics, topicCount, 5),
	}
}

func top(keys []string, counts map[string]int, n int) []string {
	sort.SliceStable(keys, func(i, j int) bool { return counts[keys[i]] > counts[keys[j]] })
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}
