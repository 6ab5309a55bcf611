package todotxt

// Tag is one key:value annotation.
type Tag struct {
	Key   string
	Value string
}

func (t Tag) String() string { return t.Key + ":" + t.Value }

// Tags keeps key:value annotations in the order they were read. Keys may
// repeat; lookups see the first occurrence.
type Tags []Tag

func (ts Tags) Get(key string) (string, bool) {
	for _, t := range ts {
		if t.Key == key {
			return t.Value, true
		}
	}
	return "", false
}

// Set replaces the value of the first tag named key, or appends one.
func (ts *Tags) Set(key, value string) {
	for i := range *ts {
		if (*ts)[i].Key == key {
			(*ts)[i].Value = value
			return
		}
	}
	*ts = append(*ts, Tag{Key: key, Value: value})
}

// Delete removes every tag named key.
func (ts *Tags) Delete(key string) {
	out := (*ts)[:0]
	for _, t := range *ts {
		if t.Key != key {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		*ts = nil
		return
	}
	*ts = out
}

func (ts Tags) Clone() Tags {
	if ts == nil {
		return nil
	}
	return append(Tags(nil), ts...)
}

// isTagKey accepts keys that start with a letter and continue with
// letters, digits, '_' or '-'. This keeps times like 10:30 in the subject.
func isTagKey(k string) bool {
	if k == "" {
		return false
	}
	for i := 0; i < len(k); i++ {
		c := k[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '_' || c == '-'):
		default:
			return false
		}
	}
	return true
}

// splitTag splits a key:value token. URLs (value starting with "//") are
// not tags.
func splitTag(token string) (Tag, bool) {
	for i := 0; i < len(token); i++ {
		if token[i] != ':' {
			continue
		}
		key, value := token[:i], token[i+1:]
		if !isTagKey(key) || value == "" || len(value) >= 2 && value[:2] == "//" {
			return Tag{}, false
		}
		return Tag{Key: key, Value: value}, true
	}
	return Tag{}, false
}
