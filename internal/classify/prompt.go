package classify

import (
	"fmt"
	"strings"

	"github.com/kevinmichaelchen/star-tidy/internal/models"
)

// SuggestedCategories is the taxonomy offered to the model in auto mode.
var SuggestedCategories = []string{
	"Web Development",
	"Mobile Development",
	"Data Science & ML",
	"DevOps & Infrastructure",
	"UI/UX & Design",
	"Backend & APIs",
	"Frontend Frameworks",
	"Database & Storage",
	"Security & Privacy",
	"Game Development",
	"Programming Languages",
	"Development Tools",
	"Documentation & Learning",
	"Open Source Libraries",
	"System Programming",
	"Cloud & Serverless",
}

// Scope is the classification context shared by every repository in a run.
type Scope struct {
	Mode       models.Mode
	Categories []string
}

// constrained reports whether the model must choose from Categories.
func (s Scope) constrained() bool {
	return s.Mode == models.ModeExistingLists && len(s.Categories) > 0
}

const autoPrompt = `Please analyze this GitHub repository and classify it into an appropriate category.

%s

Analysis Guidelines:
1. Consider the repository's primary purpose and technology stack
2. Choose from these common categories or suggest a new one:
%s
3. If none of the above categories fit well, suggest a specific category name

%s`

const existingPrompt = `Please analyze this GitHub repository and classify it into one of the existing star list categories.

%s

Existing Star List Categories:
%s

Instructions:
1. Choose the MOST appropriate category from the existing list above
2. If the repository doesn't fit any existing category well, choose "` + models.Uncategorized + `"
3. Provide a clear reason for your choice

%s`

const responseFormat = "Please respond in YAML format:\n```yaml\n" +
	"category: %q\n" +
	"reason: \"Brief explanation for this categorization\"\n" +
	"confidence: 0.9\n```\n\n" +
	"The confidence should be between 0.0 and 1.0, where 1.0 means very confident."

// BuildPrompt renders the classification prompt for repo.
func BuildPrompt(repo models.Repository, scope Scope) string {
	if scope.constrained() {
		return fmt.Sprintf(existingPrompt,
			describeRepo(repo),
			bulleted(scope.Categories),
			fmt.Sprintf(responseFormat, "Exact Category Name from the list above"))
	}
	return fmt.Sprintf(autoPrompt,
		describeRepo(repo),
		bulleted(SuggestedCategories),
		fmt.Sprintf(responseFormat, "Category Name"))
}

func describeRepo(repo models.Repository) string {
	description := "No description provided"
	if repo.Description != nil && *repo.Description != "" {
		description = *repo.Description
	}
	language := "Not specified"
	if repo.Language != nil && *repo.Language != "" {
		language = *repo.Language
	}
	topics := "None"
	if len(repo.Topics) > 0 {
		topics = strings.Join(repo.Topics, ", ")
	}
	return fmt.Sprintf("Repository Information:\n- Name: %s\n- Description: %s\n- Primary Language: %s\n- Topics: %s",
		repo.FullName, description, language, topics)
}

func bulleted(items []string) string {
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "   - " + item
	}
	return strings.Join(lines, "\n")
}
