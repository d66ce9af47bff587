package testdata

// KeyVector is a known PBKDF2-HMAC-SHA256 (100,000 iterations) result.
type KeyVector struct {
	Name     string
	Password string
	Salt     string // Hex, 16 bytes
	Key      string // Hex, 32 bytes
}

// KeyVectors were produced with an independent PBKDF2 implementation.
var KeyVectors = []KeyVector{
	{
		Name:     "ascii password",
		Password: "password",
		Salt:     "000102030405060708090a0b0c0d0e0f",
		Key:      "a29fea0fed85c5b8610c2e5697ea41b5587139e58a388e0c7b7ced30d4e6d8df",
	},
	{
		Name:     "passphrase",
		Password: "correct-horse",
		Salt:     "000102030405060708090a0b0c0d0e0f",
		Key:      "320750f50df8f0086e0cf09e97d0802f5b31754896053352151addbe6a458115",
	},
	{
		Name:     "unicode password",
		Password: "пароль123",
		Salt:     "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Key:      "e1d54f72657f329289ef106bf20a2c8635a9642d42df197fae152587535890fc",
	},
}

// DigestVector is a known SHA-256 digest.
type DigestVector struct {
	Input  string
	Digest string
}

var DigestVectors = []DigestVector{
	{Input: "", Digest: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
	{Input: "abc", Digest: "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
	{Input: "abd", Digest: "a52d159f262b2c6ddb724a61840befc36eb30c88877a4030b65cbe86298449c9"},
	{Input: "hello world", Digest: "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"},
	{Input: "héllo wörld 🌍", Digest: "701aea0197ece166311a45663e52d5d580e3b5ff116dfda2724ad928e51a834a"},
}
