package indicator

import (
	"fmt"
	"os"
	"strings"
)

type locale string

const (
	localeEnglish locale = "en"
	localeChinese locale = "zh"
)

type messages struct {
	connecting string
	listening  string
	finalizing string
	confirm    string
	noSpeech   string
	errorText  string
	errors     map[string]string
}

// confirmPrompt formats the awaiting-confirmation notice.
func (m messages) confirmPrompt(text string) string {
	return fmt.Sprintf(m.confirm, text)
}

// errorFor returns the message for a failure kind, or the generic one.
func (m messages) errorFor(kind string) string {
	if text, ok := m.errors[kind]; ok {
		return text
	}
	return m.errorText
}

// messagesFor resolves the configured locale, falling back to LANG.
func messagesFor(configured string) messages {
	if strings.TrimSpace(configured) != "" {
		return indicatorMessages(resolveLocale(configured))
	}
	return indicatorMessages(resolveLocale(os.Getenv("LANG")))
}

func resolveLocale(raw string) locale {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(raw, "zh") {
		return localeChinese
	}
	return localeEnglish
}

func indicatorMessages(tag locale) messages {
	switch tag {
	case localeChinese:
		return messages{
			connecting: "正在连接…",
			listening:  "正在聆听…",
			finalizing: "正在识别…",
			confirm:    "识别结果：%s",
			noSpeech:   "未能识别到语音，请重试。",
			errorText:  "语音识别出错",
			errors: map[string]string{
				"permission_denied":  "麦克风权限被拒绝",
				"device_unavailable": "麦克风不可用",
				"connection":         "无法连接识别服务",
				"dropped":            "识别服务连接中断",
				"remote":             "识别服务返回错误",
				"commit":             "结果提交失败",
			},
		}
	case localeEnglish:
		fallthrough
	default:
		return messages{
			connecting: "Connecting…",
			listening:  "Listening…",
			finalizing: "Recognizing…",
			confirm:    "Heard: %s",
			noSpeech:   "No speech recognized, please retry.",
			errorText:  "Speech recognition error",
			errors: map[string]string{
				"permission_denied":  "Microphone permission denied",
				"device_unavailable": "Microphone unavailable",
				"connection":         "Unable to reach transcription service",
				"dropped":            "Transcription connection lost",
				"remote":             "Transcription service error",
				"commit":             "Output dispatch failed",
			},
		}
	}
}
