package taskchampion

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/timcase/taskchampion-go/internal/tcerror"
)

// Tag is a task tag. User tags are stored on the task; synthetic tags are
// computed from task state (for example ACTIVE while a task is started) and
// cannot be added or removed directly.
type Tag struct {
	name      string
	synthetic bool
}

// Synthetic tag names, all uppercase so they cannot collide with user tags.
var syntheticTags = map[string]bool{
	"ACTIVE":    true,
	"ANNOTATED": true,
	"BLOCKED":   true,
	"BLOCKING":  true,
	"COMPLETED": true,
	"DELETED":   true,
	"PENDING":   true,
	"TAGGED":    true,
	"UNBLOCKED": true,
	"WAITING":   true,
}

// NewTag builds a tag from its name. All-uppercase names are reserved for
// synthetic tags; a name that is not a known synthetic tag must be a valid
// user tag: non-empty, no whitespace, not starting with a digit.
func NewTag(name string) (Tag, error) {
	if syntheticTags[name] {
		return Tag{name: name, synthetic: true}, nil
	}
	if name == "" {
		return Tag{}, tcerror.Validationf("tag must not be empty")
	}
	if strings.ContainsFunc(name, unicode.IsSpace) {
		return Tag{}, tcerror.Validationf("invalid tag %q: tags may not contain whitespace", name)
	}
	if first, _ := utf8.DecodeRuneInString(name); unicode.IsDigit(first) {
		return Tag{}, tcerror.Validationf("invalid tag %q: tags may not start with a digit", name)
	}
	if name == strings.ToUpper(name) && name != strings.ToLower(name) {
		return Tag{}, tcerror.Validationf("invalid tag %q: all-uppercase names are reserved for synthetic tags", name)
	}
	return Tag{name: name}, nil
}

func syntheticTag(name string) Tag {
	return Tag{name: name, synthetic: true}
}

// Name returns the tag's name.
func (t Tag) Name() string { return t.name }

// IsSynthetic reports whether the tag is computed from task state.
func (t Tag) IsSynthetic() bool { return t.synthetic }

// IsUser reports whether the tag is a user tag stored on the task.
func (t Tag) IsUser() bool { return !t.synthetic }

func (t Tag) String() string { return t.name }
