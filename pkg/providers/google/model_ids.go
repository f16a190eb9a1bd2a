package google

// Language model ID constants for Google Generative AI (Gemini).
const (
	// Gemini 1.5 series
	ModelGemini15Flash         = "gemini-1.5-flash"
	ModelGemini15FlashLatest   = "gemini-1.5-flash-latest"
	ModelGemini15Flash001      = "gemini-1.5-flash-001"
	ModelGemini15Flash002      = "gemini-1.5-flash-002"
	ModelGemini15Flash8B       = "gemini-1.5-flash-8b"
	ModelGemini15Flash8BLatest = "gemini-1.5-flash-8b-latest"
	ModelGemini15Flash8B001    = "gemini-1.5-flash-8b-001"
	ModelGemini15Pro           = "gemini-1.5-pro"
	ModelGemini15ProLatest     = "gemini-1.5-pro-latest"
	ModelGemini15Pro001        = "gemini-1.5-pro-001"
	ModelGemini15Pro002        = "gemini-1.5-pro-002"

	// Gemini 2.0 series
	ModelGemini20Flash            = "gemini-2.0-flash"
	ModelGemini20Flash001         = "gemini-2.0-flash-001"
	ModelGemini20FlashLive001     = "gemini-2.0-flash-live-001"
	ModelGemini20FlashLite        = "gemini-2.0-flash-lite"
	ModelGemini20FlashLite001     = "gemini-2.0-flash-lite-001"
	ModelGemini20FlashExp         = "gemini-2.0-flash-exp"
	ModelGemini20FlashThinkingExp = "gemini-2.0-flash-thinking-exp-01-21"
	ModelGemini20ProExp           = "gemini-2.0-pro-exp-02-05"

	// Gemini 2.5 series
	ModelGemini25Pro                    = "gemini-2.5-pro"
	ModelGemini25Flash                  = "gemini-2.5-flash"
	ModelGemini25FlashLite              = "gemini-2.5-flash-lite"
	ModelGemini25FlashLitePreview0925   = "gemini-2.5-flash-lite-preview-09-2025"
	ModelGemini25FlashPreview0417       = "gemini-2.5-flash-preview-04-17"
	ModelGemini25FlashPreview0925       = "gemini-2.5-flash-preview-09-2025"
	ModelGemini25FlashNativeAudioLatest = "gemini-2.5-flash-native-audio-latest"
	ModelGemini25FlashNativeAudio0925   = "gemini-2.5-flash-native-audio-preview-09-2025"
	ModelGemini25ComputerUsePreview     = "gemini-2.5-computer-use-preview-10-2025"

	// Gemini 3 series
	ModelGemini3ProPreview   = "gemini-3-pro-preview"
	ModelGemini3FlashPreview = "gemini-3-flash-preview"

	// Gemini 3.1 series
	ModelGemini31ProPreview       = "gemini-3.1-pro-preview"
	ModelGemini31ProPreviewCustom = "gemini-3.1-pro-preview-customtools"

	// Latest alias models
	ModelGeminiProLatest       = "gemini-pro-latest"
	ModelGeminiFlashLatest     = "gemini-flash-latest"
	ModelGeminiFlashLiteLatest = "gemini-flash-lite-latest"

	// Specialized models
	ModelDeepResearchProPreview = "deep-research-pro-preview-12-2025"
	ModelAQA                    = "aqa"

	// Experimental models
	ModelGemini25ProExp0325        = "gemini-2.5-pro-exp-03-25"
	ModelGeminiExp1206             = "gemini-exp-1206"
	ModelGeminiRoboticsER15Preview = "gemini-robotics-er-1.5-preview"

	// Gemma open models
	ModelGemma31BIt   = "gemma-3-1b-it"
	ModelGemma34BIt   = "gemma-3-4b-it"
	ModelGemma3NE4BIt = "gemma-3n-e4b-it"
	ModelGemma3NE2BIt = "gemma-3n-e2b-it"
	ModelGemma312BIt  = "gemma-3-12b-it"
	ModelGemma327BIt  = "gemma-3-27b-it"
)
