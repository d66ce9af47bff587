package crypto_test

import (
	"fmt"

	"github.com/castleatlas/atlas/internal/crypto"
)

func ExampleEncrypt() {
	envelope, err := crypto.Encrypt("hello world", "correct-horse")
	if err != nil {
		panic(err)
	}

	plaintext, err := crypto.Decrypt(envelope, "correct-horse")
	if err != nil {
		panic(err)
	}

	fmt.Println(plaintext)
	fmt.Println(len(envelope) >= 76)
	// Output:
	// hello world
	// true
}

func ExampleDecrypt() {
	envelope, _ := crypto.Encrypt("hello world", "correct-horse")

	_, err := crypto.Decrypt(envelope, "wrong-password")
	fmt.Println(err)
	// Output: unable to decrypt
}

func ExampleHash() {
	fmt.Println(crypto.Hash("abc"))
	// Output: ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad
}

func ExampleGenerateToken() {
	token, err := crypto.GenerateToken(16)
	if err != nil {
		panic(err)
	}

	fmt.Printf("Token length: %d\n", len(token))
	// Output: Token length: 32
}

func ExampleSecureCompare() {
	fmt.Println(crypto.SecureCompare("abc", "abc"))
	fmt.Println(crypto.SecureCompare("abc", "abd"))
	// Output:
	// true
	// false
}
