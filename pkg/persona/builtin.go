package persona

import (
	"time"

	"github.com/teslashibe/inbound-agent/pkg/tts"
)

var builtins = map[string]Persona{
	"epacific-vi": {
		Name:     "epacific-vi",
		Language: "vi",
		Instructions: "Bạn là trợ lý giọng nói của ePacific Telecom. Bạn giao tiếp với khách hàng qua giọng nói " +
			"và cần đưa ra câu trả lời ngắn gọn, rõ ràng, tránh sử dụng dấu câu khó phát âm. " +
			"Bạn được tạo ra để giới thiệu khả năng của các giải pháp CCALL, Eone, AI Agent do ePacific Telecom cung cấp.",
		Greeting: "Xin chào quý khách, tôi là nhân viên số bên ePacific Telecom. Tôi có thể giúp gì cho bạn ngày hôm nay?",
		STT: STTConfig{
			Model:          "nova-2",
			Language:       "vi",
			InterimResults: true,
			SmartFormat:    true,
			Punctuate:      true,
			FillerWords:    true,
		},
		LLM: LLMConfig{Model: "gpt-4o-mini", Temperature: 0.7, MaxTokens: 512},
		TTS: TTSConfig{
			Model:    tts.ModelTurboV2_5,
			Language: "vi",
			Voice:    tts.Vietlike,
		},
		Endpointing: Endpointing{MinDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second},
	},

	"epacific-en": {
		Name:     "epacific-en",
		Language: "en",
		Instructions: "You are the voice assistant of ePacific Telecom. You talk with customers by voice, " +
			"so keep your answers short and clear and avoid punctuation that is hard to pronounce. " +
			"You were created to introduce the capabilities of the CCALL, Eone and AI Agent solutions provided by ePacific Telecom.",
		Greeting: "Hello, I'm the digital assistant of ePacific Telecom. How can I help you today?",
		STT: STTConfig{
			Model:          "nova-2",
			Language:       "en-US",
			InterimResults: true,
			SmartFormat:    true,
			Punctuate:      true,
			FillerWords:    true,
		},
		LLM: LLMConfig{Model: "gpt-4o-mini", Temperature: 0.7, MaxTokens: 512},
		TTS: TTSConfig{
			Model:    tts.ModelTurboV2_5,
			Language: "en",
			Voice:    tts.Voices["rachel"],
		},
		Endpointing: Endpointing{MinDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second},
	},
}
