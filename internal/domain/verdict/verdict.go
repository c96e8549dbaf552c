// Пакет verdict — вердикт автоматической проверки и его отображение
// в целевой статус заявки и запись истории.
package verdict

import (
	"strings"

	"github.com/bigkaa/docreview/internal/domain/model"
)

// Kind — закрытый набор вариантов вердикта.
type Kind int

const (
	Unrecognized Kind = iota
	Pass
	NeedsFix
	Reject
)

func (k Kind) String() string {
	switch k {
	case Pass:
		return "PASS"
	case NeedsFix:
		return "NEEDS_FIX"
	case Reject:
		return "REJECT"
	default:
		return "UNRECOGNIZED"
	}
}

const (
	// FailurePrefix — префикс заметок об отрицательном или сбойном исходе.
	FailurePrefix = "자동 검토 실패: "
	// PassMemo — заметка при успешной автоматической проверке.
	PassMemo = "자동 검토 통과, 관리자 검토 대기"
	// NoReason — подстановка, когда нет ни замечаний, ни причины.
	NoReason = "사유 미기재"
	// UnrecognizedMemo — заметка при нераспознанном вердикте.
	UnrecognizedMemo = FailurePrefix + "OCR 응답 이상"

	maxMemoFindings = 10
)

// Verdict — разобранный вердикт. Raw хранит исходную строку сервиса.
type Verdict struct {
	Kind Kind
	Raw  string
}

// Finding — одно замечание сервиса проверки.
type Finding struct {
	Label   string `json:"label"`
	Message string `json:"message"`
}

// Outcome — результат отображения вердикта.
type Outcome struct {
	Target model.Status
	Action model.HistoryAction
	Memo   string
}

// Decode разбирает строку вердикта. Пустая или неизвестная строка
// даёт Unrecognized с сохранением исходного значения.
func Decode(raw string) Verdict {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PASS":
		return Verdict{Kind: Pass, Raw: raw}
	case "NEEDS_FIX":
		return Verdict{Kind: NeedsFix, Raw: raw}
	case "REJECT":
		return Verdict{Kind: Reject, Raw: raw}
	default:
		return Verdict{Kind: Unrecognized, Raw: raw}
	}
}

// Map отображает вердикт в целевой статус, действие и заметку.
//
//	PASS         → SUBMITTED  / MODIFIED
//	NEEDS_FIX    → NEEDS_FIX  / MODIFIED
//	REJECT       → REJECTED   / REJECTED
//	нераспознан  → NEEDS_FIX  / MODIFIED
func Map(v Verdict, findings []Finding, reason string) Outcome {
	switch v.Kind {
	case Pass:
		return Outcome{Target: model.StatusSubmitted, Action: model.ActionModified, Memo: PassMemo}
	case NeedsFix:
		return Outcome{Target: model.StatusNeedsFix, Action: model.ActionModified, Memo: FailureMemo(findings, reason)}
	case Reject:
		return Outcome{Target: model.StatusRejected, Action: model.ActionRejected, Memo: FailureMemo(findings, reason)}
	default:
		return Outcome{Target: model.StatusNeedsFix, Action: model.ActionModified, Memo: UnrecognizedMemo}
	}
}

// FailureMemo собирает заметку: первые десять замечаний «label: message»,
// иначе причина, иначе NoReason.
func FailureMemo(findings []Finding, reason string) string {
	if summary := summarize(findings); summary != "" {
		return FailurePrefix + summary
	}
	if r := strings.TrimSpace(reason); r != "" {
		return FailurePrefix + r
	}
	return FailurePrefix + NoReason
}

func summarize(findings []Finding) string {
	parts := make([]string, 0, min(len(findings), maxMemoFindings))
	for _, f := range findings {
		if len(parts) == maxMemoFindings {
			break
		}
		label := strings.TrimSpace(f.Label)
		msg := strings.TrimSpace(f.Message)
		switch {
		case label != "" && msg != "":
			parts = append(parts, label+": "+msg)
		case label != "":
			parts = append(parts, label)
		case msg != "":
			parts = append(parts, msg)
		}
	}
	return strings.Join(parts, "; ")
}
