package tts

import "github.com/lexiqai/speech-relay/internal/config"

var tiktokVoices = []Voice{
	{ID: "BV074_streaming", Name: "Cô Gái Hoạt Ngôn"},
	{ID: "BV075_streaming", Name: "Thanh Niên Tự Tin"},
	{ID: "vi_female_huong", Name: "Giọng Nữ Phổ Thông"},
	{ID: "BV421_vivn_streaming", Name: "Nguồn Nhỏ Ngọt Ngào"},
	{ID: "BV560_streaming", Name: "Anh Dũng"},
	{ID: "BV562_streaming", Name: "Chí Mai"},
}

var deepgramVoices = []Voice{
	{ID: "aura-asteria-en", Name: "Asteria"},
	{ID: "aura-luna-en", Name: "Luna"},
	{ID: "aura-stella-en", Name: "Stella"},
	{ID: "aura-orion-en", Name: "Orion"},
	{ID: "aura-arcas-en", Name: "Arcas"},
	{ID: "aura-perseus-en", Name: "Perseus"},
}

var googleVoices = []Voice{
	{ID: "vi-VN-Standard-A", Name: "Standard A (female)"},
	{ID: "vi-VN-Standard-B", Name: "Standard B (male)"},
	{ID: "vi-VN-Standard-C", Name: "Standard C (female)"},
	{ID: "vi-VN-Standard-D", Name: "Standard D (male)"},
	{ID: "vi-VN-Wavenet-A", Name: "Wavenet A (female)"},
	{ID: "vi-VN-Wavenet-B", Name: "Wavenet B (male)"},
}

// Voices returns the fixed voice set of a provider
func Voices(provider string) []Voice {
	var src []Voice
	switch provider {
	case config.ProviderTikTok:
		src = tiktokVoices
	case config.ProviderDeepgram:
		src = deepgramVoices
	case config.ProviderGoogle:
		src = googleVoices
	}
	return append([]Voice(nil), src...)
}

// IsKnownVoice reports whether id belongs to the provider's voice set
func IsKnownVoice(provider, id string) bool {
	for _, v := range Voices(provider) {
		if v.ID == id {
			return true
		}
	}
	return false
}
