package types

import (
	"slices"

	"github.com/forPelevin/gomoji"
)

const (
	DefaultMood            = "😊"
	DefaultBackgroundColor = "#ffffff"
)

var (
	Moods            = []string{"😊", "😢", "😡", "😴", "🤔", "🎉", "💪", "❤️"}
	BackgroundColors = []string{"#ffffff", "#fef3c7", "#dbeafe", "#f3e8ff", "#dcfce7"}
)

func IsMood(m string) bool {
	return slices.Contains(Moods, m)
}

func IsBackgroundColor(c string) bool {
	return slices.Contains(BackgroundColors, c)
}

// MoodName returns the descriptive emoji name for a mood glyph, or an empty
// string when the glyph is unknown to the emoji database.
func MoodName(m string) string {
	info, err := gomoji.GetInfo(m)
	if err != nil {
		return ""
	}

	return info.Slug
}
