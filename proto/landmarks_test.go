package proto

import "testing"

func TestTryConsumeOK(t *testing.T) {
	b := NewBuffer()
	b.Write([]byte("O"))
	if ok, needMore := TryConsumeOK(b); ok || !needMore {
		t.Fatalf("partial 'O': ok=%v needMore=%v, want false,true", ok, needMore)
	}
	b.Write([]byte("K"))
	ok, needMore := TryConsumeOK(b)
	if !ok || needMore {
		t.Fatalf("full 'OK': ok=%v needMore=%v, want true,false", ok, needMore)
	}
	if b.Len() != 0 {
		t.Fatalf("expected OK to be consumed, Len() = %d", b.Len())
	}
}

func TestTryConsumeOK_Mismatch(t *testing.T) {
	b := NewBuffer()
	b.Write([]byte("XY"))
	ok, needMore := TryConsumeOK(b)
	if ok || needMore {
		t.Fatalf("mismatch: ok=%v needMore=%v, want false,false", ok, needMore)
	}
}

func TestTryConsumeUntilCtrlD_Streaming(t *testing.T) {
	b := NewBuffer()
	b.Write([]byte("partial output"))
	chunk, final := TryConsumeUntilCtrlD(b)
	if final {
		t.Fatal("expected final=false with no CtrlD yet")
	}
	if string(chunk) != "partial output" {
		t.Fatalf("chunk = %q", chunk)
	}
	if b.Len() != 0 {
		t.Fatalf("expected buffered bytes to be consumed even without CtrlD, Len() = %d", b.Len())
	}

	b.Write([]byte(" more\x04trailing"))
	chunk, final = TryConsumeUntilCtrlD(b)
	if !final {
		t.Fatal("expected final=true once CtrlD seen")
	}
	if string(chunk) != " more" {
		t.Fatalf("chunk = %q", chunk)
	}
	if string(b.Unconsumed()) != "trailing" {
		t.Fatalf("Unconsumed() after CtrlD = %q", b.Unconsumed())
	}
}

func TestTryConsumeUntilCtrlD_Empty(t *testing.T) {
	b := NewBuffer()
	chunk, final := TryConsumeUntilCtrlD(b)
	if chunk != nil || final {
		t.Fatalf("empty buffer: chunk=%v final=%v, want nil,false", chunk, final)
	}
}

func TestTryConsumePrompt(t *testing.T) {
	b := NewBuffer()
	ok, needMore := TryConsumePrompt(b)
	if ok || !needMore {
		t.Fatalf("empty buffer: ok=%v needMore=%v, want false,true", ok, needMore)
	}
	b.Write([]byte(">"))
	ok, needMore = TryConsumePrompt(b)
	if !ok || needMore {
		t.Fatalf("'>' buffer: ok=%v needMore=%v, want true,false", ok, needMore)
	}
}

func TestTryConsumePrompt_Mismatch(t *testing.T) {
	b := NewBuffer()
	b.Write([]byte("X"))
	ok, needMore := TryConsumePrompt(b)
	if ok || needMore {
		t.Fatalf("mismatch: ok=%v needMore=%v, want false,false", ok, needMore)
	}
}
