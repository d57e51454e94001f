package device

// Outcome 一次设备请求的结果：要么是完整的文本响应，要么是"不可用"
type Outcome struct {
	text      string
	available bool
}

// Available 设备返回了2xx和文本
func Available(text string) Outcome {
	return Outcome{text: text, available: true}
}

// Unavailable 网络错误、超时或非2xx状态
func Unavailable() Outcome {
	return Outcome{}
}

// Text 返回响应文本；设备不可用时ok为false
func (o Outcome) Text() (text string, ok bool) {
	return o.text, o.available
}

// IsUnavailable 是否为不可用标记
func (o Outcome) IsUnavailable() bool {
	return !o.available
}
